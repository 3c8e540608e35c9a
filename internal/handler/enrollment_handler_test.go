package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type enrollmentServiceStub struct {
	lastActor   service.Actor
	lastID      int64
	lastReason  string
	lastAmount  float64
	lastFilter  models.EnrollmentFilter
	lastStudent int64
	err         error
}

func (s *enrollmentServiceStub) detail(id int64, status models.EnrollmentStatus) (*models.EnrollmentDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: id, Status: status}}, nil
}

func (s *enrollmentServiceStub) Create(_ context.Context, req dto.EnrollRequest, actor service.Actor) (*models.EnrollmentDetail, error) {
	s.lastActor = actor
	return s.detail(1, models.EnrollmentStatusPending)
}

func (s *enrollmentServiceStub) Approve(_ context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error) {
	s.lastID, s.lastActor = id, actor
	return s.detail(id, models.EnrollmentStatusApproved)
}

func (s *enrollmentServiceStub) Reject(_ context.Context, id int64, reason string, actor service.Actor) (*models.EnrollmentDetail, error) {
	s.lastID, s.lastReason, s.lastActor = id, reason, actor
	return s.detail(id, models.EnrollmentStatusRejected)
}

func (s *enrollmentServiceStub) Cancel(_ context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error) {
	s.lastID, s.lastActor = id, actor
	return s.detail(id, models.EnrollmentStatusDropped)
}

func (s *enrollmentServiceStub) Complete(_ context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error) {
	s.lastID = id
	return s.detail(id, models.EnrollmentStatusCompleted)
}

func (s *enrollmentServiceStub) UpdatePayment(_ context.Context, id int64, amount float64, actor service.Actor) (*models.EnrollmentDetail, error) {
	s.lastID, s.lastAmount = id, amount
	return s.detail(id, models.EnrollmentStatusApproved)
}

func (s *enrollmentServiceStub) Get(_ context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error) {
	s.lastID = id
	return s.detail(id, models.EnrollmentStatusPending)
}

func (s *enrollmentServiceStub) List(_ context.Context, filter models.EnrollmentFilter, actor service.Actor) ([]models.EnrollmentDetail, *models.Pagination, error) {
	s.lastFilter, s.lastActor = filter, actor
	return []models.EnrollmentDetail{}, models.NewPagination(filter.Page, filter.PageSize, 0), s.err
}

func (s *enrollmentServiceStub) History(_ context.Context, studentID int64, actor service.Actor) ([]models.EnrollmentDetail, error) {
	s.lastStudent, s.lastActor = studentID, actor
	return []models.EnrollmentDetail{}, s.err
}

func TestEnrollmentHandlerCreateRequiresAuth(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceStub{})
	c, w := newGinContext(http.MethodPost, "/enrollments", mustJSON(t, dto.EnrollRequest{ClassID: 3}))

	h.Create(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnrollmentHandlerCreate(t *testing.T) {
	svc := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(svc)
	c, w := newGinContext(http.MethodPost, "/enrollments", mustJSON(t, dto.EnrollRequest{ClassID: 3}))
	asUser(c, 31, models.RoleStudent)

	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(31), svc.lastActor.ID)
	assert.True(t, svc.lastActor.IsStudent())
}

func TestEnrollmentHandlerRejectWithoutBody(t *testing.T) {
	svc := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(svc)
	c, w := newGinContext(http.MethodPost, "/enrollments/7/reject", nil)
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "7")

	h.Reject(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), svc.lastID)
	assert.Empty(t, svc.lastReason)
}

func TestEnrollmentHandlerRejectWithReason(t *testing.T) {
	svc := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(svc)
	c, w := newGinContext(http.MethodPost, "/enrollments/7/reject", mustJSON(t, dto.RejectEnrollmentRequest{Reason: "class closed"}))
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "7")

	h.Reject(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "class closed", svc.lastReason)
}

func TestEnrollmentHandlerInvalidID(t *testing.T) {
	svc := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(svc)
	c, w := newGinContext(http.MethodPost, "/enrollments/abc/approve", nil)
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "abc")

	h.Approve(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, svc.lastID)
}

func TestEnrollmentHandlerPayment(t *testing.T) {
	svc := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(svc)
	c, w := newGinContext(http.MethodPatch, "/enrollments/4/payment", []byte(`{"amount":150000}`))
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "4")

	h.Payment(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 150000.0, svc.lastAmount)
}

func TestEnrollmentHandlerPropagatesServiceErrors(t *testing.T) {
	svc := &enrollmentServiceStub{err: appErrors.Clone(appErrors.ErrClassFull, "class is full")}
	h := NewEnrollmentHandler(svc)
	c, w := newGinContext(http.MethodPost, "/enrollments/4/approve", nil)
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "4")

	h.Approve(c)

	assert.Equal(t, appErrors.ErrClassFull.Status, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrClassFull.Code, env.Error.Code)
}

func TestEnrollmentHandlerListFilters(t *testing.T) {
	svc := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(svc)
	c, w := newGinContext(http.MethodGet, "/enrollments?class_id=3&status=pending&payment_status=partial&page=2&limit=5", nil)
	asUser(c, 20, models.RoleTeacher)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastFilter.ClassID)
	assert.Equal(t, int64(3), *svc.lastFilter.ClassID)
	assert.Equal(t, models.EnrollmentStatusPending, svc.lastFilter.Status)
	assert.Equal(t, models.PaymentStatusPartial, svc.lastFilter.PaymentStatus)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 5, svc.lastFilter.PageSize)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.Page)
}

func TestEnrollmentHandlerListRejectsUnknownPaymentStatus(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceStub{})
	c, w := newGinContext(http.MethodGet, "/enrollments?payment_status=refunded", nil)
	asUser(c, 1, models.RoleAdmin)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerHistoryDefaultsToCaller(t *testing.T) {
	svc := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(svc)
	c, w := newGinContext(http.MethodGet, "/enrollments/history", nil)
	asUser(c, 31, models.RoleStudent)

	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(31), svc.lastStudent)
}

func TestEnrollmentHandlerHistoryStaffNeedsStudent(t *testing.T) {
	svc := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodGet, "/enrollments/history", nil)
	asUser(c, 1, models.RoleAdmin)
	h.History(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/enrollments/history?student_id=31", nil)
	asUser(c, 1, models.RoleAdmin)
	h.History(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(31), svc.lastStudent)
}

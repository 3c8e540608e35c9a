package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type enrollmentFixture struct {
	svc         *EnrollmentService
	mock        sqlmock.Sqlmock
	classes     *fakeClasses
	enrollments *fakeEnrollments
	audit       *fakeAudit
}

func newEnrollmentFixture(t *testing.T, classes []models.ClassDetail, enrollments ...models.Enrollment) *enrollmentFixture {
	tx, mock := newTxProviderMock(t)
	f := &enrollmentFixture{
		mock:        mock,
		classes:     newFakeClasses(classes...),
		enrollments: newFakeEnrollments(enrollments...),
		audit:       &fakeAudit{},
	}
	f.svc = NewEnrollmentService(EnrollmentServiceParams{
		Tx:          tx,
		Enrollments: f.enrollments,
		Classes:     f.classes,
		Users: fakeUsers{
			10: {ID: 10, Role: models.RoleStudent},
			11: {ID: 11, Role: models.RoleStudent},
			20: {ID: 20, Role: models.RoleTeacher},
		},
		Audit:   f.audit,
		Metrics: NewMetricsService(),
	})
	return f
}

func openClass(id int64, max, current int) models.ClassDetail {
	return models.ClassDetail{Class: models.Class{ID: id, CourseID: 1, MaxStudents: max, CurrentStudents: current, Status: models.ClassStatusPending, TeacherID: int64Ptr(20)}}
}

var studentActor = Actor{ID: 10, Role: models.RoleStudent}

func TestEnrollmentCreateForcesOwnStudentID(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 0)})

	detail, err := f.svc.Create(context.Background(), dto.EnrollRequest{StudentID: 11, ClassID: 1}, studentActor)
	require.NoError(t, err)
	assert.Equal(t, int64(10), detail.StudentID)
	assert.Equal(t, models.EnrollmentStatusPending, detail.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, detail.PaymentStatus)
	assert.Zero(t, detail.PaymentAmount)
	require.Len(t, f.audit.logs, 1)
}

func TestEnrollmentCreateRejections(t *testing.T) {
	closed := openClass(3, 10, 0)
	closed.Status = models.ClassStatusCancelled
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 0), openClass(2, 2, 2), closed},
		models.Enrollment{ID: 1, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusRejected})

	cases := []struct {
		name string
		req  dto.EnrollRequest
		code string
	}{
		{"duplicate in any status", dto.EnrollRequest{StudentID: 10, ClassID: 1}, appErrors.ErrConflict.Code},
		{"full class", dto.EnrollRequest{StudentID: 10, ClassID: 2}, appErrors.ErrClassFull.Code},
		{"closed class", dto.EnrollRequest{StudentID: 10, ClassID: 3}, appErrors.ErrPreconditionFailed.Code},
		{"not a student", dto.EnrollRequest{StudentID: 20, ClassID: 1}, appErrors.ErrValidation.Code},
		{"unknown class", dto.EnrollRequest{StudentID: 11, ClassID: 99}, appErrors.ErrNotFound.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.req, adminActor)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestEnrollmentApproveTakesSeat(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 3)},
		models.Enrollment{ID: 5, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusPending})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	detail, err := f.svc.Approve(context.Background(), 5, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, detail.Status)
	require.NotNil(t, detail.ApprovedBy)
	assert.Equal(t, adminActor.ID, *detail.ApprovedBy)
	assert.NotNil(t, detail.ApprovedAt)
	assert.Equal(t, 4, f.classes.classes[1].CurrentStudents)
	assert.Equal(t, []int64{1}, f.classes.locked)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentLastSeatAcceptsExactlyOneApproval(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 1, 0)},
		models.Enrollment{ID: 5, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusPending},
		models.Enrollment{ID: 6, StudentID: 11, ClassID: 1, Status: models.EnrollmentStatusPending})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Approve(context.Background(), 5, adminActor)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), 6, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrClassFull.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, f.classes.classes[1].CurrentStudents)
	assert.Equal(t, models.EnrollmentStatusPending, f.enrollments.items[6].Status)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentApproveRequiresPending(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 1)},
		models.Enrollment{ID: 5, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusApproved})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Approve(context.Background(), 5, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, f.classes.classes[1].CurrentStudents)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentRejectStoresReason(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 0)},
		models.Enrollment{ID: 5, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusPending})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	detail, err := f.svc.Reject(context.Background(), 5, "  quota reached ", adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, detail.Status)
	require.NotNil(t, detail.Notes)
	assert.Equal(t, "quota reached", *detail.Notes)
	assert.Equal(t, 0, f.classes.classes[1].CurrentStudents)
}

func TestEnrollmentCancelApprovedReleasesSeat(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 1)},
		models.Enrollment{ID: 5, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusApproved})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	detail, err := f.svc.Cancel(context.Background(), 5, studentActor)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, detail.Status)
	assert.Equal(t, 0, f.classes.classes[1].CurrentStudents)
}

func TestEnrollmentCancelPendingKeepsCounter(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 4)},
		models.Enrollment{ID: 5, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusPending})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.Cancel(context.Background(), 5, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 4, f.classes.classes[1].CurrentStudents)
}

func TestEnrollmentCancelGuards(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 1)},
		models.Enrollment{ID: 5, StudentID: 11, ClassID: 1, Status: models.EnrollmentStatusApproved},
		models.Enrollment{ID: 6, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusCompleted})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Cancel(context.Background(), 5, studentActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Cancel(context.Background(), 6, studentActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, f.classes.classes[1].CurrentStudents)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentCompleteRequiresApproved(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 1)},
		models.Enrollment{ID: 5, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusApproved},
		models.Enrollment{ID: 6, StudentID: 11, ClassID: 1, Status: models.EnrollmentStatusPending})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	detail, err := f.svc.Complete(context.Background(), 5, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, detail.Status)

	_, err = f.svc.Complete(context.Background(), 6, adminActor)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentPaymentReplacesTotal(t *testing.T) {
	class := openClass(1, 10, 1)
	class.TuitionFee = float64Ptr(1000)
	f := newEnrollmentFixture(t, []models.ClassDetail{class},
		models.Enrollment{ID: 5, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusApproved, PaymentStatus: models.PaymentStatusUnpaid})
	for i := 0; i < 4; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}

	detail, err := f.svc.UpdatePayment(context.Background(), 5, 500, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartial, detail.PaymentStatus)

	detail, err = f.svc.UpdatePayment(context.Background(), 5, 500, adminActor)
	require.NoError(t, err)
	assert.InDelta(t, 500, detail.PaymentAmount, 0.001)
	assert.Equal(t, models.PaymentStatusPartial, detail.PaymentStatus)

	detail, err = f.svc.UpdatePayment(context.Background(), 5, 1000.004, adminActor)
	require.NoError(t, err)
	assert.InDelta(t, 1000, detail.PaymentAmount, 0.001)
	assert.Equal(t, models.PaymentStatusPaid, detail.PaymentStatus)

	detail, err = f.svc.UpdatePayment(context.Background(), 5, 0, adminActor)
	require.NoError(t, err)
	assert.Zero(t, detail.PaymentAmount)
	assert.Equal(t, models.PaymentStatusUnpaid, detail.PaymentStatus)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollmentPaymentRejectsNegative(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 1)},
		models.Enrollment{ID: 5, StudentID: 10, ClassID: 1})

	_, err := f.svc.UpdatePayment(context.Background(), 5, -1, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPaymentStatusFor(t *testing.T) {
	assert.Equal(t, models.PaymentStatusUnpaid, PaymentStatusFor(0, float64Ptr(500)))
	assert.Equal(t, models.PaymentStatusPartial, PaymentStatusFor(100, float64Ptr(500)))
	assert.Equal(t, models.PaymentStatusPaid, PaymentStatusFor(500, float64Ptr(500)))
	assert.Equal(t, models.PaymentStatusPaid, PaymentStatusFor(650, float64Ptr(500)))
	assert.Equal(t, models.PaymentStatusPartial, PaymentStatusFor(100, nil))
	assert.Equal(t, models.PaymentStatusUnpaid, PaymentStatusFor(0, nil))
}

func TestEnrollmentVisibility(t *testing.T) {
	f := newEnrollmentFixture(t, []models.ClassDetail{openClass(1, 10, 1), openClass(2, 10, 0)},
		models.Enrollment{ID: 5, StudentID: 11, ClassID: 1},
		models.Enrollment{ID: 6, StudentID: 10, ClassID: 2})

	_, err := f.svc.Get(context.Background(), 5, studentActor)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	items, _, err := f.svc.List(context.Background(), models.EnrollmentFilter{}, studentActor)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(6), items[0].ID)

	teacher := Actor{ID: 99, Role: models.RoleTeacher}
	_, _, err = f.svc.List(context.Background(), models.EnrollmentFilter{ClassID: int64Ptr(1)}, teacher)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.History(context.Background(), 11, studentActor)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

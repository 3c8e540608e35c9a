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
)

type gradeServiceStub struct {
	statsHit  bool
	lastClass int64
	lastN     int
	lastStud  int64
	saved     dto.SaveGradeRequest
}

func (s *gradeServiceStub) Save(_ context.Context, req dto.SaveGradeRequest, _ service.Actor) (*models.Grade, error) {
	s.saved = req
	return &models.Grade{ID: 1, EnrollmentID: req.EnrollmentID}, nil
}

func (s *gradeServiceStub) Recalculate(_ context.Context, id int64, _ service.Actor) (*models.Grade, error) {
	return &models.Grade{ID: id}, nil
}

func (s *gradeServiceStub) Delete(context.Context, int64, service.Actor) error { return nil }

func (s *gradeServiceStub) ListByClass(_ context.Context, classID int64, _ service.Actor) ([]models.StudentGrade, error) {
	s.lastClass = classID
	return []models.StudentGrade{}, nil
}

func (s *gradeServiceStub) ClassStatistics(_ context.Context, classID int64, _ service.Actor) (*models.GradeStatistics, bool, error) {
	s.lastClass = classID
	return &models.GradeStatistics{ClassID: classID, Graded: 2, Passed: 1, Failed: 1, PassRate: 50}, s.statsHit, nil
}

func (s *gradeServiceStub) TopStudents(_ context.Context, classID int64, n int, _ service.Actor) ([]models.GradeDetail, error) {
	s.lastClass, s.lastN = classID, n
	return []models.GradeDetail{}, nil
}

func (s *gradeServiceStub) GetForStudent(_ context.Context, studentID, classID int64, _ service.Actor) (*models.GradeDetail, error) {
	s.lastStud, s.lastClass = studentID, classID
	return &models.GradeDetail{}, nil
}

func (s *gradeServiceStub) ListMine(context.Context, service.Actor) ([]models.GradeDetail, error) {
	return []models.GradeDetail{}, nil
}

func TestGradeHandlerStatisticsReportsCacheHit(t *testing.T) {
	svc := &gradeServiceStub{statsHit: true}
	h := NewGradeHandler(svc)
	c, w := newGinContext(http.MethodGet, "/classes/3/grades/statistics", nil)
	asUser(c, 20, models.RoleTeacher)
	withParams(c, "id", "3")

	h.Statistics(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Equal(t, int64(3), svc.lastClass)
}

func TestGradeHandlerTopDefaultsToTen(t *testing.T) {
	svc := &gradeServiceStub{}
	h := NewGradeHandler(svc)
	c, w := newGinContext(http.MethodGet, "/classes/3/grades/top", nil)
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "3")

	h.Top(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, svc.lastN)

	c, w = newGinContext(http.MethodGet, "/classes/3/grades/top?n=x", nil)
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "3")
	h.Top(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGradeHandlerStudentClassRequiresBothIDs(t *testing.T) {
	svc := &gradeServiceStub{}
	h := NewGradeHandler(svc)

	c, w := newGinContext(http.MethodGet, "/grades/student?student_id=31", nil)
	asUser(c, 1, models.RoleAdmin)
	h.StudentClass(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/grades/student?student_id=31&class_id=3", nil)
	asUser(c, 1, models.RoleAdmin)
	h.StudentClass(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(31), svc.lastStud)
	assert.Equal(t, int64(3), svc.lastClass)
}

func TestGradeHandlerSave(t *testing.T) {
	svc := &gradeServiceStub{}
	h := NewGradeHandler(svc)
	c, w := newGinContext(http.MethodPost, "/grades", []byte(`{"enrollment_id":5,"attendance_score":8,"process_score":7,"final_score":6}`))
	asUser(c, 20, models.RoleTeacher)

	h.Save(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), svc.saved.EnrollmentID)
	require.NotNil(t, svc.saved.FinalScore)
	assert.Equal(t, 6.0, *svc.saved.FinalScore)
}

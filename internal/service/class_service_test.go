package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

// classStore extends fakeClasses with the write side of the class repository.
type classStore struct {
	*fakeClasses
	nextID int64
	// approvedWhileLocking is added to the seat counter when the row is locked,
	// standing in for approvals that committed after the unlocked read.
	approvedWhileLocking int
	updates              int
}

func newClassStore(classes ...models.ClassDetail) *classStore {
	return &classStore{fakeClasses: newFakeClasses(classes...), nextID: 50}
}

func (s *classStore) CodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	for _, c := range s.classes {
		if strings.EqualFold(c.ClassCode, code) && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *classStore) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	var out []models.ClassDetail
	for _, c := range s.classes {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (s *classStore) Create(ctx context.Context, class *models.Class) error {
	s.nextID++
	class.ID = s.nextID
	s.classes[class.ID] = &models.ClassDetail{Class: *class}
	return nil
}

func (s *classStore) LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Class, error) {
	if c, ok := s.classes[id]; ok {
		c.CurrentStudents += s.approvedWhileLocking
	}
	return s.fakeClasses.LockByID(ctx, exec, id)
}

func (s *classStore) Update(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error {
	stored, ok := s.classes[class.ID]
	if !ok {
		return sql.ErrNoRows
	}
	s.updates++
	stored.Class = *class
	return nil
}

func (s *classStore) UpdateTeacher(ctx context.Context, id int64, teacherID *int64) error {
	stored, ok := s.classes[id]
	if !ok {
		return sql.ErrNoRows
	}
	stored.TeacherID = teacherID
	return nil
}

func (s *classStore) UpdateStatus(ctx context.Context, id int64, status models.ClassStatus) error {
	stored, ok := s.classes[id]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Status = status
	return nil
}

func (s *classStore) Delete(ctx context.Context, id int64) error {
	if _, ok := s.classes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.classes, id)
	return nil
}

type courseLookup map[int64]bool

func (c courseLookup) FindByID(ctx context.Context, id int64) (*models.CourseDetail, error) {
	if c[id] {
		return &models.CourseDetail{Course: models.Course{ID: id}}, nil
	}
	return nil, sql.ErrNoRows
}

func classStaff() fakeUsers {
	return fakeUsers{
		20: {ID: 20, Role: models.RoleTeacher},
		21: {ID: 21, Role: models.RoleTeacher},
		10: {ID: 10, Role: models.RoleStudent},
	}
}

func newClassServiceForTest(tx txProvider, store *classStore, enrollments *fakeEnrollments) *ClassService {
	if enrollments == nil {
		enrollments = newFakeEnrollments()
	}
	return NewClassService(tx, store, courseLookup{1: true}, classStaff(), enrollments, nil, nil, nil, nil)
}

func classRequest(code string, max int) dto.ClassRequest {
	return dto.ClassRequest{CourseID: 1, ClassCode: code, ClassName: "Go basics", MaxStudents: max}
}

func TestClassServiceCreate(t *testing.T) {
	existing := openClass(1, 10, 0)
	existing.ClassCode = "GO-01"

	t.Run("starts pending with an empty seat counter", func(t *testing.T) {
		store := newClassStore(existing)
		svc := newClassServiceForTest(nil, store, nil)

		req := classRequest(" go-02 ", 15)
		req.TeacherID = int64Ptr(21)
		class, err := svc.Create(context.Background(), req, adminActor)
		require.NoError(t, err)
		assert.Equal(t, "GO-02", class.ClassCode)
		assert.Equal(t, models.ClassStatusPending, class.Status)
		assert.Zero(t, class.CurrentStudents)
	})

	tests := []struct {
		name   string
		mutate func(*dto.ClassRequest)
		code   string
	}{
		{"duplicate code ignores case", func(r *dto.ClassRequest) { r.ClassCode = "go-01" }, appErrors.ErrConflict.Code},
		{"teacher must have the teacher role", func(r *dto.ClassRequest) { r.TeacherID = int64Ptr(10) }, appErrors.ErrValidation.Code},
		{"unknown teacher", func(r *dto.ClassRequest) { r.TeacherID = int64Ptr(77) }, appErrors.ErrNotFound.Code},
		{"unknown course", func(r *dto.ClassRequest) { r.CourseID = 9 }, appErrors.ErrNotFound.Code},
		{"zero capacity", func(r *dto.ClassRequest) { r.MaxStudents = 0 }, appErrors.ErrValidation.Code},
		{"end before start", func(r *dto.ClassRequest) {
			start, end := day(2026, 3, 10), day(2026, 3, 1)
			r.StartDate, r.EndDate = &start, &end
		}, appErrors.ErrValidation.Code},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newClassStore(existing)
			svc := newClassServiceForTest(nil, store, nil)
			req := classRequest("GO-02", 15)
			tc.mutate(&req)

			_, err := svc.Create(context.Background(), req, adminActor)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
			assert.Len(t, store.classes, 1)
		})
	}
}

func TestClassServiceUpdateCapacity(t *testing.T) {
	class := openClass(1, 10, 4)
	class.ClassCode = "GO-01"

	t.Run("capacity may shrink to the head count", func(t *testing.T) {
		tx, mock := newTxProviderMock(t)
		store := newClassStore(class)
		svc := newClassServiceForTest(tx, store, nil)

		mock.ExpectBegin()
		mock.ExpectCommit()

		updated, err := svc.Update(context.Background(), 1, classRequest("GO-01", 4), adminActor)
		require.NoError(t, err)
		assert.Equal(t, 4, updated.MaxStudents)
		assert.Equal(t, 4, updated.CurrentStudents)
		assert.Equal(t, models.ClassStatusPending, updated.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("capacity below the head count is refused", func(t *testing.T) {
		tx, mock := newTxProviderMock(t)
		store := newClassStore(class)
		svc := newClassServiceForTest(tx, store, nil)

		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := svc.Update(context.Background(), 1, classRequest("GO-01", 3), adminActor)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
		assert.Zero(t, store.updates)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approvals seen under the row lock count", func(t *testing.T) {
		tx, mock := newTxProviderMock(t)
		store := newClassStore(class)
		store.approvedWhileLocking = 2
		svc := newClassServiceForTest(tx, store, nil)

		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := svc.Update(context.Background(), 1, classRequest("GO-01", 5), adminActor)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
		assert.Equal(t, []int64{1}, store.locked)
		assert.Equal(t, 10, store.classes[1].MaxStudents)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("code stays unique", func(t *testing.T) {
		other := openClass(2, 10, 0)
		other.ClassCode = "GO-02"
		store := newClassStore(class, other)
		svc := newClassServiceForTest(nil, store, nil)

		_, err := svc.Update(context.Background(), 1, classRequest("GO-02", 10), adminActor)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	})
}

func TestClassServiceAssignTeacher(t *testing.T) {
	store := newClassStore(openClass(1, 10, 0))
	svc := newClassServiceForTest(nil, store, nil)

	_, err := svc.AssignTeacher(context.Background(), 1, int64Ptr(10), adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	class, err := svc.AssignTeacher(context.Background(), 1, int64Ptr(21), adminActor)
	require.NoError(t, err)
	require.NotNil(t, class.TeacherID)
	assert.Equal(t, int64(21), *class.TeacherID)

	class, err = svc.AssignTeacher(context.Background(), 1, nil, adminActor)
	require.NoError(t, err)
	assert.Nil(t, class.TeacherID)
}

func TestClassServiceDelete(t *testing.T) {
	t.Run("approved enrollments block deletion", func(t *testing.T) {
		store := newClassStore(openClass(1, 10, 1))
		enrollments := newFakeEnrollments(models.Enrollment{ID: 1, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusApproved})
		svc := newClassServiceForTest(nil, store, enrollments)

		err := svc.Delete(context.Background(), 1, adminActor)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
		assert.Contains(t, store.classes, int64(1))
	})

	t.Run("pending requests do not block", func(t *testing.T) {
		store := newClassStore(openClass(1, 10, 0))
		enrollments := newFakeEnrollments(models.Enrollment{ID: 1, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusPending})
		svc := newClassServiceForTest(nil, store, enrollments)

		require.NoError(t, svc.Delete(context.Background(), 1, adminActor))
		assert.NotContains(t, store.classes, int64(1))
	})

	t.Run("unknown class", func(t *testing.T) {
		svc := newClassServiceForTest(nil, newClassStore(), nil)
		err := svc.Delete(context.Background(), 3, adminActor)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	})
}

func TestClassServiceChangeStatus(t *testing.T) {
	svc := newClassServiceForTest(nil, newClassStore(openClass(1, 10, 0)), nil)

	_, err := svc.ChangeStatus(context.Background(), 1, models.ClassStatus("PAUSED"), adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	class, err := svc.ChangeStatus(context.Background(), 1, models.ClassStatusOngoing, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.ClassStatusOngoing, class.Status)
}

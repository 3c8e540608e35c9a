package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type fakeCourses struct {
	types   map[int64]*models.CourseType
	courses map[int64]*models.Course
	nextID  int64
	lists   int
}

func newFakeCourses() *fakeCourses {
	return &fakeCourses{
		types:   map[int64]*models.CourseType{1: {ID: 1, Name: "Programming", Code: "PROG"}},
		courses: map[int64]*models.Course{7: {ID: 7, Code: "GO-101", Name: "Go", Status: models.CourseStatusActive}},
		nextID:  100,
	}
}

func (f *fakeCourses) ListTypes(ctx context.Context) ([]models.CourseType, error) {
	var out []models.CourseType
	for _, ct := range f.types {
		out = append(out, *ct)
	}
	return out, nil
}

func (f *fakeCourses) FindTypeByID(ctx context.Context, id int64) (*models.CourseType, error) {
	if ct, ok := f.types[id]; ok {
		copy := *ct
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourses) TypeCodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	for _, ct := range f.types {
		if strings.EqualFold(ct.Code, code) && ct.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCourses) CreateType(ctx context.Context, ct *models.CourseType) error {
	f.nextID++
	ct.ID = f.nextID
	copy := *ct
	f.types[ct.ID] = &copy
	return nil
}

func (f *fakeCourses) UpdateType(ctx context.Context, ct *models.CourseType) error {
	copy := *ct
	f.types[ct.ID] = &copy
	return nil
}

func (f *fakeCourses) DeleteType(ctx context.Context, id int64) error {
	if _, ok := f.types[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.types, id)
	return nil
}

func (f *fakeCourses) FindByID(ctx context.Context, id int64) (*models.CourseDetail, error) {
	if c, ok := f.courses[id]; ok {
		return &models.CourseDetail{Course: *c}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourses) CodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	for _, c := range f.courses {
		if strings.EqualFold(c.Code, code) && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCourses) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	f.lists++
	var out []models.CourseDetail
	for _, c := range f.courses {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, models.CourseDetail{Course: *c})
	}
	return out, len(out), nil
}

func (f *fakeCourses) Create(ctx context.Context, course *models.Course) error {
	f.nextID++
	course.ID = f.nextID
	copy := *course
	f.courses[course.ID] = &copy
	return nil
}

func (f *fakeCourses) Update(ctx context.Context, course *models.Course) error {
	copy := *course
	f.courses[course.ID] = &copy
	return nil
}

func (f *fakeCourses) UpdateStatus(ctx context.Context, id int64, status models.CourseStatus) error {
	c, ok := f.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Status = status
	return nil
}

func (f *fakeCourses) Delete(ctx context.Context, id int64) error {
	if _, ok := f.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.courses, id)
	return nil
}

func intPtr(v int) *int { return &v }

func TestCourseServiceCreate(t *testing.T) {
	t.Run("defaults to draft and records the author", func(t *testing.T) {
		repo := newFakeCourses()
		audit := &fakeAudit{}
		svc := NewCourseService(repo, audit, nil, nil, nil)

		course, err := svc.Create(context.Background(), dto.CourseRequest{
			CourseTypeID: int64Ptr(1), Code: " py-101 ", Name: "Python",
			DurationHours: intPtr(24), DurationSessions: intPtr(8), TuitionFee: float64Ptr(0),
		}, adminActor)
		require.NoError(t, err)
		assert.Equal(t, "PY-101", course.Code)
		assert.Equal(t, models.CourseStatusDraft, course.Status)
		require.NotNil(t, course.CreatedBy)
		assert.Equal(t, adminActor.ID, *course.CreatedBy)
		require.Len(t, audit.logs, 1)
		assert.Equal(t, models.AuditActionCourseWrite, audit.logs[0].Action)
	})

	tests := []struct {
		name string
		req  dto.CourseRequest
		code string
	}{
		{"duplicate code", dto.CourseRequest{Code: "go-101", Name: "Go again"}, appErrors.ErrConflict.Code},
		{"zero hours", dto.CourseRequest{Code: "X-1", Name: "X", DurationHours: intPtr(0)}, appErrors.ErrValidation.Code},
		{"zero sessions", dto.CourseRequest{Code: "X-1", Name: "X", DurationSessions: intPtr(0)}, appErrors.ErrValidation.Code},
		{"negative fee", dto.CourseRequest{Code: "X-1", Name: "X", TuitionFee: float64Ptr(-1)}, appErrors.ErrValidation.Code},
		{"unknown type", dto.CourseRequest{Code: "X-1", Name: "X", CourseTypeID: int64Ptr(9)}, appErrors.ErrNotFound.Code},
		{"unknown status", dto.CourseRequest{Code: "X-1", Name: "X", Status: "ARCHIVED"}, appErrors.ErrValidation.Code},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeCourses()
			svc := NewCourseService(repo, nil, nil, nil, nil)

			_, err := svc.Create(context.Background(), tc.req, adminActor)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
			assert.Len(t, repo.courses, 1)
		})
	}
}

func TestCourseServiceUpdateKeepsOwnCode(t *testing.T) {
	repo := newFakeCourses()
	repo.courses[8] = &models.Course{ID: 8, Code: "JS-101", Name: "JS", Status: models.CourseStatusDraft}
	svc := NewCourseService(repo, nil, nil, nil, nil)

	course, err := svc.Update(context.Background(), 7, dto.CourseRequest{Code: "GO-101", Name: "Go in depth"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "Go in depth", course.Name)
	assert.Equal(t, models.CourseStatusActive, course.Status)

	_, err = svc.Update(context.Background(), 7, dto.CourseRequest{Code: "js-101", Name: "Go"}, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceTypes(t *testing.T) {
	repo := newFakeCourses()
	svc := NewCourseService(repo, nil, nil, nil, nil)

	_, err := svc.CreateType(context.Background(), dto.CourseTypeRequest{Name: "Programming 2", Code: "prog"}, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	ct, err := svc.CreateType(context.Background(), dto.CourseTypeRequest{Name: "Design", Code: " des "}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "DES", ct.Code)

	renamed, err := svc.UpdateType(context.Background(), ct.ID, dto.CourseTypeRequest{Name: "Graphic design", Code: "DES"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "Graphic design", renamed.Name)

	_, err = svc.UpdateType(context.Background(), ct.ID, dto.CourseTypeRequest{Name: "Design", Code: "PROG"}, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.DeleteType(context.Background(), ct.ID, adminActor))
	err = svc.DeleteType(context.Background(), ct.ID, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCatalog(t *testing.T) {
	repo := newFakeCourses()
	repo.courses[8] = &models.Course{ID: 8, Code: "JS-101", Name: "JS", Status: models.CourseStatusDraft}
	cacheRepo := newFakeCacheRepo()
	svc := NewCourseService(repo, nil, newTestCache(cacheRepo), nil, nil)

	page, hit, err := svc.Catalog(context.Background(), models.CourseFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, page.Courses, 1)
	assert.Equal(t, "GO-101", page.Courses[0].Code)

	_, hit, err = svc.Catalog(context.Background(), models.CourseFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, repo.lists)

	_, err = svc.ChangeStatus(context.Background(), 8, models.CourseStatusActive, adminActor)
	require.NoError(t, err)
	page, hit, err = svc.Catalog(context.Background(), models.CourseFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, page.Courses, 2)
}

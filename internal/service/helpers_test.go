package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/models"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type fakeAudit struct {
	logs []*models.AuditLog
}

func (f *fakeAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeUsers map[int64]*models.User

func (f fakeUsers) FindByID(ctx context.Context, id int64) (*models.User, error) {
	if u, ok := f[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type fakeClasses struct {
	classes map[int64]*models.ClassDetail
	locked  []int64
}

func newFakeClasses(classes ...models.ClassDetail) *fakeClasses {
	f := &fakeClasses{classes: make(map[int64]*models.ClassDetail)}
	for i := range classes {
		c := classes[i]
		f.classes[c.ID] = &c
	}
	return f
}

func (f *fakeClasses) FindByID(ctx context.Context, id int64) (*models.ClassDetail, error) {
	if c, ok := f.classes[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeClasses) LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Class, error) {
	f.locked = append(f.locked, id)
	if c, ok := f.classes[id]; ok {
		copy := c.Class
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeClasses) AdjustCurrentStudents(ctx context.Context, exec sqlx.ExtContext, id int64, delta int) error {
	c, ok := f.classes[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.CurrentStudents += delta
	if c.CurrentStudents < 0 {
		c.CurrentStudents = 0
	}
	return nil
}

func (f *fakeClasses) IsTaughtBy(ctx context.Context, classID, teacherID int64) (bool, error) {
	c, ok := f.classes[classID]
	if !ok {
		return false, nil
	}
	return c.TeacherID != nil && *c.TeacherID == teacherID, nil
}

type fakeEnrollments struct {
	items  map[int64]*models.Enrollment
	nextID int64
}

func newFakeEnrollments(items ...models.Enrollment) *fakeEnrollments {
	f := &fakeEnrollments{items: make(map[int64]*models.Enrollment), nextID: 1000}
	for i := range items {
		e := items[i]
		f.items[e.ID] = &e
	}
	return f
}

func (f *fakeEnrollments) FindByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	if e, ok := f.items[id]; ok {
		return &models.EnrollmentDetail{Enrollment: *e}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollments) LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Enrollment, error) {
	if e, ok := f.items[id]; ok {
		copy := *e
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollments) Exists(ctx context.Context, studentID, classID int64) (bool, error) {
	for _, e := range f.items {
		if e.StudentID == studentID && e.ClassID == classID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEnrollments) Create(ctx context.Context, e *models.Enrollment) error {
	f.nextID++
	e.ID = f.nextID
	copy := *e
	f.items[e.ID] = &copy
	return nil
}

func (f *fakeEnrollments) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, e *models.Enrollment) error {
	stored, ok := f.items[e.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Status = e.Status
	stored.Notes = e.Notes
	stored.ApprovedBy = e.ApprovedBy
	stored.ApprovedAt = e.ApprovedAt
	return nil
}

func (f *fakeEnrollments) UpdatePayment(ctx context.Context, exec sqlx.ExtContext, id int64, amount float64, status models.PaymentStatus) error {
	stored, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	stored.PaymentAmount = amount
	stored.PaymentStatus = status
	return nil
}

func (f *fakeEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range f.items {
		if filter.StudentID != nil && e.StudentID != *filter.StudentID {
			continue
		}
		if filter.ClassID != nil && e.ClassID != *filter.ClassID {
			continue
		}
		out = append(out, models.EnrollmentDetail{Enrollment: *e})
	}
	return out, len(out), nil
}

func (f *fakeEnrollments) History(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error) {
	out, _, err := f.List(ctx, models.EnrollmentFilter{StudentID: &studentID})
	return out, err
}

func (f *fakeEnrollments) ListApprovedByClass(ctx context.Context, exec sqlx.ExtContext, classID int64) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range f.items {
		if e.ClassID == classID && e.Status == models.EnrollmentStatusApproved {
			out = append(out, models.EnrollmentDetail{Enrollment: *e, StudentName: "student"})
		}
	}
	return out, nil
}

func (f *fakeEnrollments) CountApprovedByClass(ctx context.Context, classID int64) (int, error) {
	approved, err := f.ListApprovedByClass(ctx, nil, classID)
	return len(approved), err
}

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }
func stringPtr(v string) *string    { return &v }

func (f *fakeEnrollments) FindByStudentAndClass(ctx context.Context, studentID, classID int64) (*models.Enrollment, error) {
	for _, e := range f.items {
		if e.StudentID == studentID && e.ClassID == classID {
			copy := *e
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeCacheRepo struct {
	entries     map[string][]byte
	invalidated []string
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{entries: make(map[string][]byte)}
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = raw
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	f.invalidated = append(f.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range f.entries {
		if key == pattern || (strings.HasSuffix(pattern, "*") && strings.HasPrefix(key, prefix)) {
			delete(f.entries, key)
		}
	}
	return nil
}

func newTestCache(repo *fakeCacheRepo) *CacheService {
	return NewCacheService(repo, nil, time.Minute, nil, true)
}

package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
	"github.com/noah-isme/short-course-api/pkg/export"
	"github.com/noah-isme/short-course-api/pkg/jobs"
)

type fakeCertificates struct {
	items    map[int64]*models.CertificateDetail
	eligible []models.EligibleEnrollment
	codes    map[string]bool
	nextID   int64
}

func newFakeCertificates(items ...models.CertificateDetail) *fakeCertificates {
	f := &fakeCertificates{items: map[int64]*models.CertificateDetail{}, codes: map[string]bool{}, nextID: 40}
	for i := range items {
		c := items[i]
		f.items[c.ID] = &c
		f.codes[c.CertificateCode] = true
	}
	return f
}

func (f *fakeCertificates) FindByID(ctx context.Context, id int64) (*models.CertificateDetail, error) {
	if c, ok := f.items[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCertificates) FindByCode(ctx context.Context, code string) (*models.CertificateDetail, error) {
	for _, c := range f.items {
		if c.CertificateCode == code {
			copy := *c
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCertificates) CodeExists(ctx context.Context, exec sqlx.ExtContext, code string) (bool, error) {
	return f.codes[code], nil
}

func (f *fakeCertificates) ExistsForEnrollment(ctx context.Context, enrollmentID int64) (bool, error) {
	for _, c := range f.items {
		if c.EnrollmentID == enrollmentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCertificates) ListEligible(ctx context.Context, exec sqlx.ExtContext, classID int64) ([]models.EligibleEnrollment, error) {
	return f.eligible, nil
}

func (f *fakeCertificates) Create(ctx context.Context, exec sqlx.ExtContext, cert *models.Certificate) error {
	f.nextID++
	cert.ID = f.nextID
	f.codes[cert.CertificateCode] = true
	f.items[cert.ID] = &models.CertificateDetail{Certificate: *cert, ClassID: 1, StudentName: "Ani", CourseName: "Go"}
	return nil
}

func (f *fakeCertificates) Update(ctx context.Context, cert *models.Certificate) error {
	stored, ok := f.items[cert.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Certificate = *cert
	return nil
}

func (f *fakeCertificates) SetFilePath(ctx context.Context, id int64, path string) error {
	f.items[id].FilePath = &path
	return nil
}

func (f *fakeCertificates) Delete(ctx context.Context, id int64) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

func (f *fakeCertificates) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error) {
	var out []models.CertificateDetail
	for _, c := range f.items {
		if filter.StudentID != nil && c.StudentID != *filter.StudentID {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

type fakeStore struct {
	files map[string][]byte
}

func (f *fakeStore) Save(name string, data []byte) (string, error) {
	f.files[name] = data
	return name, nil
}

func (f *fakeStore) ReadFile(name string) ([]byte, error) {
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("missing %s", name)
	}
	return data, nil
}

func (f *fakeStore) Exists(name string) bool {
	_, ok := f.files[name]
	return ok
}

func (f *fakeStore) Delete(name string) error {
	delete(f.files, name)
	return nil
}

type fakeRenderer struct {
	rendered []export.CertificateContent
}

func (f *fakeRenderer) Render(c export.CertificateContent) ([]byte, error) {
	f.rendered = append(f.rendered, c)
	return []byte("%PDF " + c.Code), nil
}

type fakeQueue struct {
	jobs []jobs.Job
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type certificateFixture struct {
	svc      *CertificateService
	repo     *fakeCertificates
	grades   *fakeGrades
	store    *fakeStore
	renderer *fakeRenderer
	queue    *fakeQueue
}

func newCertificateFixture(t *testing.T, tx txProvider, certs ...models.CertificateDetail) certificateFixture {
	t.Helper()
	f := certificateFixture{
		repo:     newFakeCertificates(certs...),
		grades:   newFakeGrades(),
		store:    &fakeStore{files: map[string][]byte{}},
		renderer: &fakeRenderer{},
		queue:    &fakeQueue{},
	}
	f.svc = NewCertificateService(CertificateServiceParams{
		Tx:      tx,
		Repo:    f.repo,
		Classes: newFakeClasses(openClass(3, 10, 2)),
		Enrollments: newFakeEnrollments(
			models.Enrollment{ID: 5, StudentID: 10, ClassID: 3, Status: models.EnrollmentStatusApproved},
			models.Enrollment{ID: 6, StudentID: 11, ClassID: 3, Status: models.EnrollmentStatusApproved},
		),
		Grades:   f.grades,
		Storage:  f.store,
		Renderer: f.renderer,
		Config:   CertificateServiceConfig{VerifyBaseURL: "https://courses.test/verify/"},
	})
	f.svc.now = func() time.Time { return time.Date(2026, 3, 20, 14, 0, 0, 0, time.UTC) }
	f.svc.UseQueue(f.queue)
	return f
}

func TestCertificateServiceIssueForClassSkipsTakenCodes(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newCertificateFixture(t, tx, models.CertificateDetail{Certificate: models.Certificate{ID: 1, EnrollmentID: 99, CertificateCode: "CERT-3-001"}})
	f.repo.eligible = []models.EligibleEnrollment{{EnrollmentID: 5, StudentID: 10}, {EnrollmentID: 6, StudentID: 11}}

	mock.ExpectBegin()
	mock.ExpectCommit()

	issued, err := f.svc.IssueForClass(context.Background(), 3, dto.IssueClassCertificatesRequest{}, adminActor)
	require.NoError(t, err)
	require.Len(t, issued, 2)
	assert.Equal(t, "CERT-3-002", issued[0].CertificateCode)
	assert.Equal(t, "CERT-3-003", issued[1].CertificateCode)
	assert.Equal(t, models.CertificateStatusIssued, issued[0].Status)
	require.NotNil(t, issued[0].IssueDate)
	assert.Equal(t, day(2026, 3, 20), *issued[0].IssueDate)
	assert.Len(t, f.queue.jobs, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateServiceIssueForClassCustomPrefix(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newCertificateFixture(t, tx)
	f.repo.eligible = []models.EligibleEnrollment{{EnrollmentID: 5, StudentID: 10}}

	mock.ExpectBegin()
	mock.ExpectCommit()

	issued, err := f.svc.IssueForClass(context.Background(), 3, dto.IssueClassCertificatesRequest{Prefix: "web"}, teacherActor)
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, "WEB-3-001", issued[0].CertificateCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateServiceCreateRequiresEligibility(t *testing.T) {
	f := newCertificateFixture(t, nil)

	_, err := f.svc.Create(context.Background(), dto.CreateCertificateRequest{EnrollmentID: 5, CertificateCode: "X-1"}, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)

	f.grades.byEnrollment[5] = &models.Grade{ID: 1, EnrollmentID: 5, Pass: true}
	draft, err := f.svc.Create(context.Background(), dto.CreateCertificateRequest{EnrollmentID: 5, CertificateCode: "X-1"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateStatusDraft, draft.Status)

	_, err = f.svc.Create(context.Background(), dto.CreateCertificateRequest{EnrollmentID: 5, CertificateCode: "X-2"}, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	f.grades.byEnrollment[6] = &models.Grade{ID: 2, EnrollmentID: 6, Pass: true}
	_, err = f.svc.Create(context.Background(), dto.CreateCertificateRequest{EnrollmentID: 6, CertificateCode: "X-1"}, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceIssueOnlyDrafts(t *testing.T) {
	f := newCertificateFixture(t, nil,
		models.CertificateDetail{Certificate: models.Certificate{ID: 1, CertificateCode: "A", Status: models.CertificateStatusDraft}, ClassID: 3},
		models.CertificateDetail{Certificate: models.Certificate{ID: 2, CertificateCode: "B", Status: models.CertificateStatusRevoked}, ClassID: 3},
	)

	issued, err := f.svc.Issue(context.Background(), 1, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateStatusIssued, issued.Status)
	require.NotNil(t, issued.IssuedBy)

	_, err = f.svc.Issue(context.Background(), 1, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Issue(context.Background(), 2, adminActor)
	require.Error(t, err)
}

func TestCertificateServiceRevokeAndVerify(t *testing.T) {
	issueDate := day(2026, 3, 1)
	f := newCertificateFixture(t, nil, models.CertificateDetail{
		Certificate: models.Certificate{ID: 1, CertificateCode: "CERT-3-001", Status: models.CertificateStatusIssued, IssueDate: &issueDate},
		ClassID:     3, StudentName: "Ani", CourseName: "Go",
	})

	result, err := f.svc.Verify(context.Background(), "CERT-3-001")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.NotNil(t, result.IssueDate)
	assert.Equal(t, "2026-03-01", *result.IssueDate)

	revoked, err := f.svc.Revoke(context.Background(), 1, dto.RevokeCertificateRequest{Reason: "plagiarism"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateStatusRevoked, revoked.Status)
	assert.Equal(t, "plagiarism", *revoked.Notes)

	result, err = f.svc.Verify(context.Background(), "CERT-3-001")
	require.NoError(t, err)
	assert.False(t, result.Valid)

	_, err = f.svc.Verify(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceDocumentRendersOnceThenReadsStored(t *testing.T) {
	f := newCertificateFixture(t, nil, models.CertificateDetail{
		Certificate: models.Certificate{ID: 1, CertificateCode: "CERT-3-001", Status: models.CertificateStatusIssued},
		StudentID:   10, ClassID: 3, StudentName: "Ani", CourseName: "Go",
	})

	doc, err := f.svc.Document(context.Background(), 1, studentActor)
	require.NoError(t, err)
	assert.Equal(t, "CERT-3-001.pdf", doc.Filename)
	require.Len(t, f.renderer.rendered, 1)
	assert.Equal(t, "https://courses.test/verify/CERT-3-001", f.renderer.rendered[0].VerifyURL)

	again, err := f.svc.Document(context.Background(), 1, studentActor)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, again.Content)
	assert.Len(t, f.renderer.rendered, 1)

	_, err = f.svc.Document(context.Background(), 1, Actor{ID: 11, Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceHandleJob(t *testing.T) {
	f := newCertificateFixture(t, nil,
		models.CertificateDetail{Certificate: models.Certificate{ID: 1, CertificateCode: "A", Status: models.CertificateStatusIssued}, StudentName: "Ani", ClassID: 3},
		models.CertificateDetail{Certificate: models.Certificate{ID: 2, CertificateCode: "B", Status: models.CertificateStatusDraft}, StudentName: "Budi", ClassID: 3},
	)

	require.NoError(t, f.svc.HandleJob(context.Background(), jobs.Job{ID: "1"}))
	require.NoError(t, f.svc.HandleJob(context.Background(), jobs.Job{ID: "2"}))
	require.NoError(t, f.svc.HandleJob(context.Background(), jobs.Job{ID: "77"}))
	assert.Len(t, f.renderer.rendered, 1)
	assert.True(t, f.store.Exists("certificates/3/A.pdf"))
	require.Error(t, f.svc.HandleJob(context.Background(), jobs.Job{ID: "abc"}))
}

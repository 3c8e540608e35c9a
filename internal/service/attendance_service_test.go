package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type fakeAttendance struct {
	items    map[int64]*models.Attendance
	nextID   int64
	attended int
	total    int
	unmarked []models.StudentReference
}

func newFakeAttendance(items ...models.Attendance) *fakeAttendance {
	f := &fakeAttendance{items: make(map[int64]*models.Attendance), nextID: 500}
	for i := range items {
		a := items[i]
		f.items[a.ID] = &a
	}
	return f
}

func (f *fakeAttendance) FindByID(ctx context.Context, id int64) (*models.Attendance, error) {
	if a, ok := f.items[id]; ok {
		copy := *a
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAttendance) FindByScheduleAndStudent(ctx context.Context, exec sqlx.ExtContext, scheduleID, studentID int64) (*models.Attendance, error) {
	for _, a := range f.items {
		if a.ScheduleID == scheduleID && a.StudentID == studentID {
			copy := *a
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAttendance) Create(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error {
	f.nextID++
	attendance.ID = f.nextID
	copy := *attendance
	f.items[copy.ID] = &copy
	return nil
}

func (f *fakeAttendance) Update(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error {
	if _, ok := f.items[attendance.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *attendance
	f.items[copy.ID] = &copy
	return nil
}

func (f *fakeAttendance) Delete(ctx context.Context, id int64) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

func (f *fakeAttendance) ListBySchedule(ctx context.Context, scheduleID int64) ([]models.AttendanceRecord, error) {
	var out []models.AttendanceRecord
	for _, a := range f.items {
		if a.ScheduleID == scheduleID {
			out = append(out, models.AttendanceRecord{Attendance: *a})
		}
	}
	return out, nil
}

func (f *fakeAttendance) ListByStudentAndClass(ctx context.Context, studentID, classID int64) ([]models.AttendanceRecord, error) {
	return nil, nil
}

func (f *fakeAttendance) CountForStudentInClass(ctx context.Context, studentID, classID int64) (int, int, error) {
	return f.attended, f.total, nil
}

func (f *fakeAttendance) CountBySchedule(ctx context.Context, scheduleID int64) ([]models.AttendanceStatusCount, error) {
	counts := map[models.AttendanceStatus]int{}
	for _, a := range f.items {
		if a.ScheduleID == scheduleID {
			counts[a.Status]++
		}
	}
	var out []models.AttendanceStatusCount
	for status, total := range counts {
		out = append(out, models.AttendanceStatusCount{Status: status, Total: total})
	}
	return out, nil
}

func (f *fakeAttendance) ListUnmarked(ctx context.Context, scheduleID int64) ([]models.StudentReference, error) {
	return f.unmarked, nil
}

type attendanceFixture struct {
	svc        *AttendanceService
	attendance *fakeAttendance
}

var teacherActor = Actor{ID: 20, Role: models.RoleTeacher}

func newAttendanceFixture(t *testing.T, tx txProvider, records ...models.Attendance) attendanceFixture {
	t.Helper()
	schedules := newFakeSchedules(models.Schedule{ID: 7, ClassID: 1, SessionNumber: 1, SessionDate: day(2026, 3, 2),
		StartTime: models.NewClockTime(9, 0), EndTime: models.NewClockTime(11, 0)})
	enrollments := newFakeEnrollments(
		models.Enrollment{ID: 1, StudentID: 10, ClassID: 1, Status: models.EnrollmentStatusApproved},
		models.Enrollment{ID: 2, StudentID: 11, ClassID: 1, Status: models.EnrollmentStatusApproved},
		models.Enrollment{ID: 3, StudentID: 12, ClassID: 1, Status: models.EnrollmentStatusPending},
	)
	attendance := newFakeAttendance(records...)
	svc := NewAttendanceService(tx, attendance, schedules, enrollments, newFakeClasses(openClass(1, 10, 2)), nil, nil)
	return attendanceFixture{svc: svc, attendance: attendance}
}

func TestAttendanceServiceMark(t *testing.T) {
	f := newAttendanceFixture(t, nil)

	record, err := f.svc.Mark(context.Background(), 7, dto.MarkAttendanceRequest{StudentID: 10, Status: models.AttendanceStatusLate}, teacherActor)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, record.Status)
	require.NotNil(t, record.MarkedBy)
	assert.Equal(t, int64(20), *record.MarkedBy)
	assert.NotNil(t, record.MarkedAt)

	_, err = f.svc.Mark(context.Background(), 7, dto.MarkAttendanceRequest{StudentID: 10, Status: models.AttendanceStatusPresent}, teacherActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceMarkRejections(t *testing.T) {
	tests := []struct {
		name  string
		req   dto.MarkAttendanceRequest
		actor Actor
		code  string
	}{
		{"pending enrollment", dto.MarkAttendanceRequest{StudentID: 12, Status: models.AttendanceStatusPresent}, adminActor, appErrors.ErrPreconditionFailed.Code},
		{"not enrolled", dto.MarkAttendanceRequest{StudentID: 99, Status: models.AttendanceStatusPresent}, adminActor, appErrors.ErrPreconditionFailed.Code},
		{"other teacher", dto.MarkAttendanceRequest{StudentID: 10, Status: models.AttendanceStatusPresent}, Actor{ID: 21, Role: models.RoleTeacher}, appErrors.ErrForbidden.Code},
		{"bad status", dto.MarkAttendanceRequest{StudentID: 10, Status: "SICK"}, adminActor, appErrors.ErrValidation.Code},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newAttendanceFixture(t, nil)
			_, err := f.svc.Mark(context.Background(), 7, tc.req, tc.actor)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestAttendanceServiceMarkAllUpserts(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newAttendanceFixture(t, tx, models.Attendance{ID: 1, ScheduleID: 7, StudentID: 10, Status: models.AttendanceStatusAbsent})

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := f.svc.MarkAll(context.Background(), 7, dto.MarkAllRequest{Status: models.AttendanceStatusPresent}, teacherActor)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, models.AttendanceStatusPresent, f.attendance.items[1].Status)
	assert.Len(t, f.attendance.items, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceServiceRate(t *testing.T) {
	f := newAttendanceFixture(t, nil)
	f.attendance.attended, f.attendance.total = 2, 3

	rate, err := f.svc.Rate(context.Background(), 10, 1, studentActor)
	require.NoError(t, err)
	assert.Equal(t, 66.67, rate.Rate)

	f.attendance.attended, f.attendance.total = 0, 0
	rate, err = f.svc.Rate(context.Background(), 10, 1, adminActor)
	require.NoError(t, err)
	assert.Zero(t, rate.Rate)

	_, err = f.svc.Rate(context.Background(), 11, 1, studentActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceScheduleSummary(t *testing.T) {
	f := newAttendanceFixture(t, nil,
		models.Attendance{ID: 1, ScheduleID: 7, StudentID: 10, Status: models.AttendanceStatusPresent},
		models.Attendance{ID: 2, ScheduleID: 7, StudentID: 13, Status: models.AttendanceStatusExcused},
	)
	f.attendance.unmarked = []models.StudentReference{{StudentID: 11, StudentName: "Budi"}}

	summary, err := f.svc.ScheduleSummary(context.Background(), 7, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Present)
	assert.Equal(t, 1, summary.Excused)
	assert.Equal(t, 2, summary.Total)
	require.Len(t, summary.NotMarked, 1)
	assert.Equal(t, int64(11), summary.NotMarked[0].StudentID)
}

func TestAttendanceServiceUpdateAndDelete(t *testing.T) {
	f := newAttendanceFixture(t, nil, models.Attendance{ID: 1, ScheduleID: 7, StudentID: 10, Status: models.AttendanceStatusAbsent})

	updated, err := f.svc.Update(context.Background(), 1, dto.UpdateAttendanceRequest{Status: models.AttendanceStatusExcused, Note: stringPtr("doctor")}, teacherActor)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusExcused, updated.Status)

	require.NoError(t, f.svc.Delete(context.Background(), 1, adminActor))
	err = f.svc.Delete(context.Background(), 1, adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/models"
)

var enrollmentRowColumns = []string{"id", "student_id", "class_id", "enrollment_date", "status", "payment_status", "payment_amount",
	"notes", "approved_by", "approved_at", "created_at", "updated_at"}

func TestEnrollmentRepositoryLockByIDInsideTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments e WHERE e.id = $1 FOR UPDATE")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).
			AddRow(int64(10), int64(3), int64(4), now, "PENDING", "UNPAID", 0.0, nil, nil, nil, now, now))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	enrollment, err := repo.LockByID(context.Background(), tx, 10)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	require.Equal(t, int64(4), enrollment.ClassID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(int64(3), int64(4), sqlmock.AnyArg(), models.EnrollmentStatusPending, models.PaymentStatusUnpaid, 0.0, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(77)))

	enrollment := &models.Enrollment{StudentID: 3, ClassID: 4, Status: models.EnrollmentStatusPending, PaymentStatus: models.PaymentStatusUnpaid}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.Equal(t, int64(77), enrollment.ID)
	require.False(t, enrollment.EnrollmentDate.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdatePayment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET payment_amount = $2, payment_status = $3")).
		WithArgs(int64(5), 150.5, models.PaymentStatusPartial, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePayment(context.Background(), nil, 5, 150.5, models.PaymentStatusPartial))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFiltersByStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	studentID := int64(3)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.student_id = $1 AND e.status = $2 ORDER BY e.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(studentID, models.EnrollmentStatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e")).
		WithArgs(studentID, models.EnrollmentStatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	rows, total, err := repo.List(context.Background(), models.EnrollmentFilter{StudentID: &studentID, Status: models.EnrollmentStatusApproved})
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Zero(t, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

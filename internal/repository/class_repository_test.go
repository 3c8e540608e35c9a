package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/models"
)

func TestClassRepositoryAdjustCurrentStudentsFloorsAtZero(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET current_students = GREATEST(current_students + $2, 0)")).
		WithArgs(int64(4), -1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AdjustCurrentStudents(context.Background(), nil, 4, -1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryLockByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM classes cl WHERE cl.id = $1 FOR UPDATE")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "teacher_id", "class_code", "class_name", "start_date", "end_date",
			"max_students", "current_students", "room", "status", "created_at", "updated_at"}).
			AddRow(int64(4), int64(1), int64(2), "GO-01", "Go basics", now, now.AddDate(0, 1, 0), 10, 10, "R1", "ONGOING", now, now))

	class, err := repo.LockByID(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.True(t, class.Full())
	assert.Equal(t, 0, class.AvailableSeats())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListAvailableOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	courseID := int64(1)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE cl.course_id = $1 AND cl.status IN ('PENDING', 'ONGOING') AND cl.current_students < cl.max_students ORDER BY cl.start_date DESC")).
		WithArgs(courseID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM classes cl")).
		WithArgs(courseID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.ClassFilter{CourseID: &courseID, AvailableOnly: true})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryUpdateInsideTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET course_id = ")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	class := &models.Class{ID: 4, CourseID: 1, ClassCode: "GO-01", ClassName: "Go basics", MaxStudents: 12, Status: models.ClassStatusOngoing}
	require.NoError(t, repo.Update(context.Background(), tx, class))
	require.NoError(t, tx.Commit())
	assert.False(t, class.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

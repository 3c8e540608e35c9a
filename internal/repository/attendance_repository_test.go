package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceRepositoryCountForStudentInClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE a.status IN ('PRESENT', 'LATE')) AS attended")).
		WithArgs(int64(5), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"attended", "total"}).AddRow(7, 9))

	attended, total, err := repo.CountForStudentInClass(context.Background(), 5, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, attended)
	assert.Equal(t, 9, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListUnmarked(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.id = $1 AND a.id IS NULL")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "student_name"}).AddRow(int64(3), "Cara"))

	rows, err := repo.ListUnmarked(context.Background(), 8)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cara", rows[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/short-course-api/internal/models"
)

const studentProfileColumns = `id, user_id, student_code, date_of_birth, place_of_birth, address, major, created_at, updated_at`

// StudentProfileRepository stores the per-student profile sheet.
type StudentProfileRepository struct {
	db *sqlx.DB
}

// NewStudentProfileRepository constructs the repository.
func NewStudentProfileRepository(db *sqlx.DB) *StudentProfileRepository {
	return &StudentProfileRepository{db: db}
}

// FindByUserID loads the profile attached to a user account.
func (r *StudentProfileRepository) FindByUserID(ctx context.Context, userID int64) (*models.StudentProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM student_profiles WHERE user_id = $1", studentProfileColumns)
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile: %w", err)
	}
	return &profile, nil
}

// ExistsByCode reports whether another user already owns the student code.
func (r *StudentProfileRepository) ExistsByCode(ctx context.Context, code string, excludeUserID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM student_profiles WHERE student_code = $1 AND user_id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code, excludeUserID); err != nil {
		return false, fmt.Errorf("check student code: %w", err)
	}
	return exists, nil
}

// Upsert creates or replaces the profile of profile.UserID.
func (r *StudentProfileRepository) Upsert(ctx context.Context, profile *models.StudentProfile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO student_profiles (user_id, student_code, date_of_birth, place_of_birth, address, major, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id)
DO UPDATE SET student_code = EXCLUDED.student_code, date_of_birth = EXCLUDED.date_of_birth,
place_of_birth = EXCLUDED.place_of_birth, address = EXCLUDED.address, major = EXCLUDED.major, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, profile.UserID, profile.StudentCode, profile.DateOfBirth, profile.PlaceOfBirth,
		profile.Address, profile.Major, profile.CreatedAt, profile.UpdatedAt)
	if err := row.Scan(&profile.ID, &profile.CreatedAt); err != nil {
		return fmt.Errorf("upsert student profile: %w", err)
	}
	return nil
}

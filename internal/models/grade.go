package models

import "time"

// GradeLetter is the A to F banding of a total score.
type GradeLetter string

const (
	GradeLetterA GradeLetter = "A"
	GradeLetterB GradeLetter = "B"
	GradeLetterC GradeLetter = "C"
	GradeLetterD GradeLetter = "D"
	GradeLetterF GradeLetter = "F"
)

// Grade is the single score sheet of an enrollment. TotalScore, GradeLetter and
// Pass are derived from the three component scores on every write.
type Grade struct {
	ID              int64        `db:"id" json:"id"`
	EnrollmentID    int64        `db:"enrollment_id" json:"enrollment_id"`
	AttendanceScore *float64     `db:"attendance_score" json:"attendance_score,omitempty"`
	ProcessScore    *float64     `db:"process_score" json:"process_score,omitempty"`
	FinalScore      *float64     `db:"final_score" json:"final_score,omitempty"`
	TotalScore      *float64     `db:"total_score" json:"total_score,omitempty"`
	GradeLetter     *GradeLetter `db:"grade_letter" json:"grade_letter,omitempty"`
	Pass            bool         `db:"pass" json:"pass"`
	Note            *string      `db:"note" json:"note,omitempty"`
	GradedBy        *int64       `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt        *time.Time   `db:"graded_at" json:"graded_at,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// GradeDetail adds the student and class context of a grade.
type GradeDetail struct {
	Grade
	StudentID   int64  `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	ClassID     int64  `db:"class_id" json:"class_id"`
	ClassCode   string `db:"class_code" json:"class_code"`
}

// StudentGrade pairs an enrollment of a class with its grade, which may be missing.
type StudentGrade struct {
	EnrollmentID     int64            `db:"enrollment_id" json:"enrollment_id"`
	EnrollmentStatus EnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
	StudentID        int64            `db:"student_id" json:"student_id"`
	StudentName      string           `db:"student_name" json:"student_name"`
	StudentEmail     string           `db:"student_email" json:"student_email"`
	GradeID          *int64           `db:"grade_id" json:"grade_id,omitempty"`
	AttendanceScore  *float64         `db:"attendance_score" json:"attendance_score,omitempty"`
	ProcessScore     *float64         `db:"process_score" json:"process_score,omitempty"`
	FinalScore       *float64         `db:"final_score" json:"final_score,omitempty"`
	TotalScore       *float64         `db:"total_score" json:"total_score,omitempty"`
	GradeLetter      *GradeLetter     `db:"grade_letter" json:"grade_letter,omitempty"`
	Pass             *bool            `db:"pass" json:"pass,omitempty"`
}

// GradeStatistics summarises the graded enrollments of a class.
type GradeStatistics struct {
	ClassID      int64               `json:"class_id"`
	Graded       int                 `json:"graded"`
	Passed       int                 `json:"passed"`
	Failed       int                 `json:"failed"`
	AverageTotal *float64            `json:"average_total,omitempty"`
	PassRate     float64             `json:"pass_rate"`
	Distribution map[GradeLetter]int `json:"distribution"`
}

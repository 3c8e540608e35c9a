package dto

import (
	"time"

	"github.com/noah-isme/short-course-api/internal/models"
)

// CreateUserRequest is the admin payload for creating accounts.
type CreateUserRequest struct {
	Username string            `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string            `json:"email" validate:"required,email,max=100"`
	FullName string            `json:"full_name" validate:"required,max=100"`
	Phone    *string           `json:"phone" validate:"omitempty,max=20"`
	Role     models.UserRole   `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	Status   models.UserStatus `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE SUSPENDED"`
	Password string            `json:"password" validate:"required,min=6"`
}

// RegisterRequest is the self-service sign-up payload. Accounts are always STUDENT.
type RegisterRequest struct {
	Username        string  `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email           string  `json:"email" validate:"required,email,max=100"`
	FullName        string  `json:"full_name" validate:"required,max=100"`
	Phone           *string `json:"phone" validate:"omitempty,max=20"`
	Password        string  `json:"password" validate:"required,min=6"`
	ConfirmPassword string  `json:"confirm_password" validate:"required,eqfield=Password"`
}

// UpdateUserRequest is the admin payload for editing accounts.
type UpdateUserRequest struct {
	Email    string            `json:"email" validate:"required,email,max=100"`
	FullName string            `json:"full_name" validate:"required,max=100"`
	Phone    *string           `json:"phone" validate:"omitempty,max=20"`
	Role     models.UserRole   `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	Status   models.UserStatus `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE SUSPENDED"`
}

// UpdateProfileRequest lets a user edit their own contact details.
type UpdateProfileRequest struct {
	FullName  string  `json:"full_name" validate:"required,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=255"`
}

// ChangeStatusRequest switches an account status.
type ChangeStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=ACTIVE INACTIVE SUSPENDED"`
}

// ResetPasswordRequest lets an admin set a new password.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// StudentProfileRequest upserts the student profile sheet.
type StudentProfileRequest struct {
	StudentCode  *string    `json:"student_code" validate:"omitempty,max=20"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
	PlaceOfBirth *string    `json:"place_of_birth" validate:"omitempty,max=100"`
	Address      *string    `json:"address"`
	Major        *string    `json:"major" validate:"omitempty,max=100"`
}

package dto

// EnrollRequest asks for a seat in a class. StudentID is ignored for STUDENT callers.
type EnrollRequest struct {
	StudentID int64   `json:"student_id"`
	ClassID   int64   `json:"class_id" validate:"required,gt=0"`
	Notes     *string `json:"notes" validate:"omitempty,max=1000"`
}

// RejectEnrollmentRequest carries the rejection reason.
type RejectEnrollmentRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// PaymentRequest sets the total tuition paid so far.
type PaymentRequest struct {
	Amount float64 `json:"amount" validate:"gte=0"`
}

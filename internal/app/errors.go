package app

import (
	"fmt"
	"net/http"
)

// Failure is a terminal, machine-readable outcome surfaced to callers.
// None of these are retried.
type Failure struct {
	Reason  string
	Message string
	Status  int
}

func (f *Failure) Error() string {
	return f.Message
}

var (
	ErrInvalidToken = &Failure{
		Reason:  "invalid_token",
		Message: "Invalid QR code.",
		Status:  http.StatusBadRequest,
	}
	ErrExpiredToken = &Failure{
		Reason:  "expired_token",
		Message: "QR code has expired.",
		Status:  http.StatusBadRequest,
	}
	ErrUnauthorized = &Failure{
		Reason:  "unauthorized",
		Message: "Unauthorized",
		Status:  http.StatusForbidden,
	}
	ErrStudentNotFound = &Failure{
		Reason:  "student_not_found",
		Message: "Student not found",
		Status:  http.StatusNotFound,
	}
	ErrStorageUnavailable = &Failure{
		Reason:  "storage_unavailable",
		Message: "Storage is unavailable, try again later",
		Status:  http.StatusServiceUnavailable,
	}
)

// AlreadyMarked carries the checkpoint label for the user-facing message.
func AlreadyMarked(checkpoint string) *Failure {
	return &Failure{
		Reason:  "already_marked",
		Message: fmt.Sprintf("Attendance already marked for %s.", checkpoint),
		Status:  http.StatusConflict,
	}
}

func UsernameTaken() *Failure {
	return &Failure{
		Reason:  "username_taken",
		Message: "Username already exists",
		Status:  http.StatusBadRequest,
	}
}

func MissingField(field string) *Failure {
	return &Failure{
		Reason:  "missing_field",
		Message: fmt.Sprintf("Missing field: %s", field),
		Status:  http.StatusBadRequest,
	}
}

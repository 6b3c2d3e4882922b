package models

import (
	"github.com/go-playground/validator/v10"
)

// DateFormat is the canonical wire format for attendance days.
const DateFormat = "2006-01-02"

const (
	MethodQR     = "QR"
	MethodManual = "Manual"
)

// AttendanceRecord is one (student, checkpoint) check-in within a day.
// Uniqueness over (date, student_id, checkpoint) is enforced by the store.
type AttendanceRecord struct {
	Date        string `db:"date" json:"date" validate:"required,datetime=2006-01-02"`
	StudentID   string `db:"student_id" json:"student_id" validate:"required"`
	StudentName string `db:"student_name" json:"student_name"`
	Timestamp   int64  `db:"timestamp" json:"timestamp"`
	Checkpoint  string `db:"checkpoint" json:"checkpoint" validate:"required"`
	Method      string `db:"method" json:"method" validate:"required,oneof=QR Manual"`
}

func (r *AttendanceRecord) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// BulkEntry is one item of a teacher roll-call submission.
type BulkEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Present   bool   `json:"present"`
}

// BulkResult accumulates per-item outcomes; there is no cross-item rollback.
type BulkResult struct {
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}

package models

// CheckinEvent is the payload pushed to dashboard observers after a
// committed append. Timestamp is pre-formatted for display.
type CheckinEvent struct {
	Date        string `json:"date"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Checkpoint  string `json:"checkpoint"`
	Method      string `json:"method"`
	Timestamp   string `json:"timestamp"`
}

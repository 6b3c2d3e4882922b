package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/narvaro/internal/app"
	"github.com/shrimpsizemoose/narvaro/internal/models"
)

type AttendanceHandler struct {
	service *app.Service
}

func NewAttendanceHandler(service *app.Service) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
	}
}

// HandleMark is the self-service token path.
func (h *AttendanceHandler) HandleMark(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/attendance/mark", h.handleMark)(w, r)
}

func (h *AttendanceHandler) handleMark(w http.ResponseWriter, r *http.Request) int {
	principal, err := h.service.Sessions.FromRequest(r)
	if err != nil {
		logger.Debug.Printf("No principal: %v", err)
		return writeFailure(w, app.ErrUnauthorized)
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeFailure(w, app.MissingField("token"))
	}

	record, err := h.service.MarkViaToken(r.Context(), req.Token, principal)
	if err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "Attendance marked successfully!",
		"checkpoint": record.Checkpoint,
	})
	return http.StatusOK
}

// HandleManualMark lets a teacher mark a single student directly.
func (h *AttendanceHandler) HandleManualMark(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/attendance/manual", h.handleManualMark)(w, r)
}

func (h *AttendanceHandler) handleManualMark(w http.ResponseWriter, r *http.Request) int {
	principal, err := h.service.Sessions.FromRequest(r)
	if err != nil {
		return writeFailure(w, app.ErrUnauthorized)
	}

	var req struct {
		StudentID  string `json:"student_id"`
		Date       string `json:"date"`
		Checkpoint string `json:"checkpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeFailure(w, app.MissingField("student_id"))
	}

	record, err := h.service.MarkManual(r.Context(), req.StudentID, req.Date, req.Checkpoint, principal)
	if err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"student_name": record.StudentName,
	})
	return http.StatusOK
}

// HandleBulkMark applies a teacher roll-call in one request.
func (h *AttendanceHandler) HandleBulkMark(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/attendance/bulk", h.handleBulkMark)(w, r)
}

func (h *AttendanceHandler) handleBulkMark(w http.ResponseWriter, r *http.Request) int {
	principal, err := h.service.Sessions.FromRequest(r)
	if err != nil {
		return writeFailure(w, app.ErrUnauthorized)
	}

	var req struct {
		Entries    []models.BulkEntry `json:"entries"`
		Date       string             `json:"date"`
		Checkpoint string             `json:"checkpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeFailure(w, app.MissingField("entries"))
	}

	result, err := h.service.MarkBulk(r.Context(), req.Entries, req.Date, req.Checkpoint, principal)
	if err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": result.Updated,
		"skipped": result.Skipped,
	})
	return http.StatusOK
}

// HandleDayRecords serves the monitor view for one date.
func (h *AttendanceHandler) HandleDayRecords(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/attendance/{date}", h.handleDayRecords)(w, r)
}

func (h *AttendanceHandler) handleDayRecords(w http.ResponseWriter, r *http.Request) int {
	principal, err := h.service.Sessions.FromRequest(r)
	if err != nil {
		return writeFailure(w, app.ErrUnauthorized)
	}

	date := r.PathValue("date")
	records, err := h.service.DayRecords(date, principal)
	if err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"date":    date,
		"records": records,
	})
	return http.StatusOK
}

// HandleStats serves the student's own attendance summary.
func (h *AttendanceHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/stats", h.handleStats)(w, r)
}

func (h *AttendanceHandler) handleStats(w http.ResponseWriter, r *http.Request) int {
	principal, err := h.service.Sessions.FromRequest(r)
	if err != nil {
		return writeFailure(w, app.ErrUnauthorized)
	}

	stats, err := h.service.StudentStats(principal)
	if err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":             true,
		"percentage":          stats.Percentage,
		"classes_today":       stats.ClassesToday,
		"total_classes_today": stats.TotalClassesToday,
	})
	return http.StatusOK
}

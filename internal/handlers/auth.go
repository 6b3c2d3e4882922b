package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shrimpsizemoose/narvaro/internal/app"
)

type AuthHandler struct {
	service *app.Service
}

func NewAuthHandler(service *app.Service) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/login", h.handleLogin)(w, r)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) int {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeFailure(w, app.MissingField("username"))
	}

	token, user, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"role":    user.Role,
		"name":    user.DisplayName,
	})
	return http.StatusOK
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/logout", h.handleLogout)(w, r)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) int {
	if err := h.service.Logout(r.Context(), h.service.Sessions.BearerToken(r)); err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
	return http.StatusOK
}

// HandleAddStudent provisions a new student account (teacher only).
func (h *AuthHandler) HandleAddStudent(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/students", h.handleAddStudent)(w, r)
}

func (h *AuthHandler) handleAddStudent(w http.ResponseWriter, r *http.Request) int {
	principal, err := h.service.Sessions.FromRequest(r)
	if err != nil {
		return writeFailure(w, app.ErrUnauthorized)
	}

	var req app.AddStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeFailure(w, app.MissingField("username"))
	}

	user, err := h.service.AddStudent(req, principal)
	if err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Student added successfully",
		"id":      user.ID,
	})
	return http.StatusOK
}

// HandleListStudents serves the roster for the manual-entry view.
func (h *AuthHandler) HandleListStudents(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/students", h.handleListStudents)(w, r)
}

func (h *AuthHandler) handleListStudents(w http.ResponseWriter, r *http.Request) int {
	principal, err := h.service.Sessions.FromRequest(r)
	if err != nil {
		return writeFailure(w, app.ErrUnauthorized)
	}

	students, err := h.service.Students(principal)
	if err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"students": students,
	})
	return http.StatusOK
}

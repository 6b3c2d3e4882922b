package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/narvaro/internal/app"
	"github.com/shrimpsizemoose/narvaro/internal/metrics"
	"github.com/shrimpsizemoose/narvaro/internal/models"
)

type LiveHandler struct {
	service *app.Service
}

func NewLiveHandler(service *app.Service) *LiveHandler {
	return &LiveHandler{
		service: service,
	}
}

// HandleEvents streams check-in events to a dashboard observer over SSE.
// No replay: the stream starts with whatever is published after connect.
func (h *LiveHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	principal, err := h.service.Sessions.FromRequest(r)
	if err != nil {
		writeFailure(w, app.ErrUnauthorized)
		return
	}
	if !principal.Role.Can(models.PermViewDashboard) {
		writeFailure(w, app.ErrUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.service.Events.Subscribe(r.Context())
	defer cancel()

	metrics.LiveObservers.Inc()
	defer metrics.LiveObservers.Dec()

	logger.Debug.Printf("Observer %s connected", principal.Username)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error.Printf("Failed to marshal event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: student_checked_in\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// HandleQRRefresh answers an observer-initiated refresh with a fresh token
// image. The client's own cadence drives rotation; defaults keep the
// refresh shorter than the token TTL.
func (h *LiveHandler) HandleQRRefresh(w http.ResponseWriter, r *http.Request) {
	observe("/api/v1/qr", h.handleQRRefresh)(w, r)
}

func (h *LiveHandler) handleQRRefresh(w http.ResponseWriter, r *http.Request) int {
	principal, err := h.service.Sessions.FromRequest(r)
	if err != nil {
		return writeFailure(w, app.ErrUnauthorized)
	}
	if !principal.Role.Can(models.PermViewDashboard) {
		return writeFailure(w, app.ErrUnauthorized)
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format(models.DateFormat)
	}
	checkpoint := r.URL.Query().Get("checkpoint")

	qr, err := h.service.RefreshQR(date, checkpoint)
	if err != nil {
		return writeFailure(w, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"token":      qr.Token,
		"image":      qr.Image,
		"refresh_ms": qr.RefreshMs,
	})
	return http.StatusOK
}

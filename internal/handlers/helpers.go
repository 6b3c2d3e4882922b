package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/narvaro/internal/app"
	"github.com/shrimpsizemoose/narvaro/internal/metrics"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debug.Printf("Error encoding response: %v", err)
	}
}

// writeFailure maps the error taxonomy onto a structured JSON failure.
// Anything outside the taxonomy is reported as a storage problem rather
// than leaking internals to the client.
func writeFailure(w http.ResponseWriter, err error) int {
	var failure *app.Failure
	if !errors.As(err, &failure) {
		logger.Error.Printf("Unclassified error: %v", err)
		failure = app.ErrStorageUnavailable
	}

	writeJSON(w, failure.Status, map[string]interface{}{
		"success": false,
		"reason":  failure.Reason,
		"error":   failure.Message,
	})
	return failure.Status
}

// observe wraps a handler with the request duration histogram.
func observe(path string, next func(w http.ResponseWriter, r *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := next(w, r)
		metrics.APIRequestDuration.WithLabelValues(
			path,
			r.Method,
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())
	}
}

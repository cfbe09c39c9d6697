// Package httpserver contains the admin API handlers and middleware.
//
// Handlers validate input, call a single use case, and map errors onto the
// wire envelope; no scheduling logic lives here.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fairyhunter13/chronoq/internal/domain"
)

// Error tags exposed in the response envelope.
const (
	tagValidationFailed = "validation_failed"
	tagBadRequest       = "bad_request"
	tagNotFound         = "not_found"
	tagInternalError    = "internal_error"
)

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error onto a status code and tag. Anything
// unrecognized is a 500 with a generic message; details stay in the logs.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	tag := tagInternalError
	message := "Internal server error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
		tag = tagValidationFailed
		message = bareMessage(err, domain.ErrValidation)
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		tag = tagNotFound
		message = bareMessage(err, domain.ErrNotFound)
	default:
		LoggerFrom(r).Error("request failed", "error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: tag, Message: message})
}

// bareMessage returns the error text without the sentinel prefix. The
// sentinel classifies the error internally; clients get only the detail
// ("Job not found or already processed", not "not found: Job not ...").
func bareMessage(err error, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

// writeBadRequest reports malformed input that never reached validation
// (unreadable body, bad JSON, bad path ID).
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: tagBadRequest, Message: message})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/refset/telco-churn-scoring/internal/schema"
	"github.com/refset/telco-churn-scoring/internal/scoring"
)

// envelope wraps every non-prediction response. Predictions are written bare
// so clients of the scoring endpoint read the fields at the top level.
type envelope struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: message})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, envelope{Status: "error", Code: code, Message: message})
}

// writeDomainError maps err onto a status and error code and returns the code.
// Causes that are not the caller's doing are reported without detail.
func writeDomainError(w http.ResponseWriter, err error) string {
	var (
		status = http.StatusInternalServerError
		code   = "INTERNAL_ERROR"
		msg    = "internal server error"
	)
	switch {
	case errors.Is(err, schema.ErrInvalidOverride):
		status, code, msg = http.StatusBadRequest, "INVALID_OVERRIDE", err.Error()
	case errors.Is(err, scoring.ErrSchemaMismatch):
		status, code, msg = http.StatusUnprocessableEntity, "SCHEMA_MISMATCH", err.Error()
	case errors.Is(err, scoring.ErrModelNotLoaded):
		status, code, msg = http.StatusServiceUnavailable, "MODEL_NOT_LOADED", "model not loaded"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, code, msg = http.StatusServiceUnavailable, "REQUEST_CANCELLED", "request cancelled"
	}
	writeError(w, status, code, msg)
	return code
}

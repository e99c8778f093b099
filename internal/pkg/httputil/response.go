package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType,omitempty"`
	Message   string `json:"message,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code. The data is
// serialized and Content-Type is set automatically.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode error", "error", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response with the given data.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// NoContent writes a 204 response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes the error envelope. errorType is the machine-readable code;
// message is shown to users.
func Error(w http.ResponseWriter, status int, errorType, message string) {
	JSON(w, status, ErrorResponse{Error: message, ErrorType: errorType, Message: message})
}

// ErrorWithDetails writes the error envelope with a details payload.
func ErrorWithDetails(w http.ResponseWriter, status int, errorType, message string, details any) {
	JSON(w, status, ErrorResponse{Error: message, ErrorType: errorType, Message: message, Details: details})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, errorType, message string) {
	Error(w, http.StatusBadRequest, errorType, message)
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, errorType, message string) {
	Error(w, http.StatusNotFound, errorType, message)
}

// InternalError writes a 500 error. Logs the real error but returns a
// generic message to the client (never leak internals).
func InternalError(w http.ResponseWriter, errorType string, err error) {
	logger.Error("httputil: internal error", "errorType", errorType, "error", err)
	Error(w, http.StatusInternalServerError, errorType, "Something went wrong on our end. Please try again shortly.")
}

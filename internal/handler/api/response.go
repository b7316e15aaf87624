// Package api contains the JSON API handlers. They mirror the web handlers
// but authenticate with bearer tokens and speak JSON instead of HTML.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is the envelope for successful API responses.
type Response struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta carries pagination information for list responses.
type Meta struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Pages   int   `json:"pages"`
}

// ErrorResponse is the envelope for API errors.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a single API error.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteSuccess writes a 200 response with the standard envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Data: data})
}

// WriteList writes a 200 response with pagination metadata.
func WriteList(w http.ResponseWriter, data any, meta Meta) {
	writeJSON(w, http.StatusOK, Response{Data: data, Meta: &meta})
}

// WriteCreated writes a 201 response with the standard envelope.
func WriteCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Response{Data: data})
}

// WriteNoContent writes an empty 204 response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes an error response with the given status and code.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// WriteValidationError writes a 422 with per-field details.
func WriteValidationError(w http.ResponseWriter, details map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorBody{
		Code:    "validation_failed",
		Message: "The request is invalid.",
		Details: details,
	}})
}

// WriteNotFound writes a 404 error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

// WriteForbidden writes a 403 error.
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

// WriteUnauthorized writes a 401 error.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

// WriteInternalError logs the error and writes a generic 500.
func WriteInternalError(w http.ResponseWriter, msg string, args ...any) {
	slog.Error(msg, args...)
	WriteError(w, http.StatusInternalServerError, "internal_error", "Something went wrong.")
}

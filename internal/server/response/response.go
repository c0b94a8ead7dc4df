// Package response provides standardized HTTP response structures and
// helpers for the panelmap API server. All API responses follow a
// consistent format with a data field for successful responses and an
// error field for failures.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/genomicsops/panelmap/pkg/errors"
)

// Response represents the standardized API response structure.
// All endpoints return this format for consistency.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error represents an API error with code, message, and optional details.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Success creates a successful response with data.
func Success(data any) Response {
	return Response{
		Data:  data,
		Error: nil,
	}
}

// Fail creates an error response.
func Fail(code, message, details string) Response {
	return Response{
		Data: nil,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are ignored as headers are already sent (best effort)
	_ = json.NewEncoder(w).Encode(resp)
}

// OK writes a successful response with 200 status.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success(data))
}

// Created writes a successful response with 201 status.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Success(data))
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusBadRequest, Fail("BAD_REQUEST", message, details))
}

// Conflict writes a 409 error response.
func Conflict(w http.ResponseWriter, message string) {
	JSON(w, http.StatusConflict, Fail("CONFLICT", message, ""))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusNotFound, Fail("NOT_FOUND", message, details))
}

// InternalError writes a 500 error response without exposing the cause.
func InternalError(w http.ResponseWriter, _ error) {
	JSON(w, http.StatusInternalServerError, Fail(
		"INTERNAL_ERROR",
		"Internal server error",
		"An unexpected error occurred",
	))
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	JSON(w, http.StatusServiceUnavailable, Fail(
		"SERVICE_UNAVAILABLE",
		"Service unavailable",
		message,
	))
}

// ErrorFromType maps typed errors to appropriate HTTP responses.
func ErrorFromType(w http.ResponseWriter, err error) {
	switch {
	case errors.IsNotFound(err):
		NotFound(w, err.Error(), "")
	case errors.IsValidationError(err):
		BadRequest(w, err.Error(), "")
	case errors.IsAlreadyExists(err):
		Conflict(w, err.Error())
	case errors.IsExportEmpty(err):
		NotFound(w, "no interval records produced", "")
	case errors.IsUpstreamUnreachable(err):
		ServiceUnavailable(w, err.Error())
	default:
		InternalError(w, err)
	}
}

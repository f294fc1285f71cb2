package api

import (
	"errors"
	"net/http"
)

// ErrorResponse is the envelope every non-2xx JSON response uses.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Error is a failure that already knows how it is reported to clients.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// NewError builds an *Error; details may be nil.
func NewError(status int, code, message string, details map[string]any) *Error {
	return &Error{Status: status, Code: code, Message: message, Details: details}
}

// Fail writes err. An *Error anywhere in the chain keeps its status and code;
// anything else becomes an opaque 500 and reports false so the caller logs it.
func Fail(w http.ResponseWriter, requestID string, err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		Internal(w, requestID)
		return false
	}
	WriteError(w, e.Status, e.Code, e.Message, requestID, e.Details)
	return true
}

func WriteError(w http.ResponseWriter, status int, code, message, requestID string, details map[string]any) {
	WriteJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message, Details: details, RequestID: requestID}})
}

func BadRequest(w http.ResponseWriter, code, message, requestID string, details map[string]any) {
	WriteError(w, http.StatusBadRequest, code, message, requestID, details)
}

func Unauthorized(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusUnauthorized, code, message, requestID, nil)
}

func Forbidden(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusForbidden, code, message, requestID, nil)
}

func NotFound(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusNotFound, code, message, requestID, nil)
}

func Conflict(w http.ResponseWriter, code, message, requestID string, details map[string]any) {
	WriteError(w, http.StatusConflict, code, message, requestID, details)
}

func Unprocessable(w http.ResponseWriter, code, message, requestID string, details map[string]any) {
	WriteError(w, http.StatusUnprocessableEntity, code, message, requestID, details)
}

// RateLimited is written by the per-user rate limiter.
func RateLimited(w http.ResponseWriter, code, message, requestID string, details map[string]any) {
	WriteError(w, http.StatusTooManyRequests, code, message, requestID, details)
}

// Internal never echoes the cause.
func Internal(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error", requestID, nil)
}

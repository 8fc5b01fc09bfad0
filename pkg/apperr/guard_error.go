// Package apperr defines the error type returned across the HTTP surface.
// Handlers return *AppError and the fiber error handler renders it.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeForbidden    = "FORBIDDEN"

	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidInput     = "INVALID_INPUT"

	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	CodeStoreError    = "STORE_ERROR"
	CodeExternalError = "EXTERNAL_ERROR"
	CodeRateLimited   = "RATE_LIMITED"

	CodeInternalError = "INTERNAL_ERROR"
)

// AppError carries a stable code, a client-safe message and the HTTP status.
// Err is logged but never rendered.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail attaches a key to the rendered details object.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// WithError records the cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func Wrap(err error, code, message string, status int) *AppError {
	return New(code, message, status).WithError(err)
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(message string) *AppError {
	return New(CodeInvalidToken, message, http.StatusUnauthorized)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func ValidationFailed(message string) *AppError {
	return New(CodeValidationFailed, message, http.StatusBadRequest)
}

// InvalidInput names the offending field in both the message and details.
func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason), http.StatusBadRequest).
		WithDetail("field", field)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found", http.StatusNotFound)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// RateLimited reports how long the client should back off, rounded up to
// whole seconds.
func RateLimited(retryAfter time.Duration) *AppError {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return New(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetail("retry_after", secs)
}

func StoreError(operation string, err error) *AppError {
	return Wrap(err, CodeStoreError, "store error: "+operation, http.StatusInternalServerError)
}

func ExternalService(service string, err error) *AppError {
	return Wrap(err, CodeExternalError, "external service error: "+service, http.StatusBadGateway).
		WithDetail("service", service)
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return New(CodeInternalError, message, http.StatusInternalServerError)
}

// AsAppError unwraps an *AppError from err, or wraps err as an internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternalError, "internal server error", http.StatusInternalServerError)
}

// HasCode reports whether err carries an *AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// Package middleware holds the fiber middleware shared by every route.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"guard_server/pkg/apperr"
	"guard_server/pkg/logger"
)

const headerRequestID = "X-Request-ID"

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// statusCodes maps bare fiber errors onto our codes.
var statusCodes = map[int]string{
	fiber.StatusBadRequest:            apperr.CodeValidationFailed,
	fiber.StatusUnauthorized:          apperr.CodeUnauthorized,
	fiber.StatusForbidden:             apperr.CodeForbidden,
	fiber.StatusNotFound:              apperr.CodeNotFound,
	fiber.StatusMethodNotAllowed:      apperr.CodeBadRequest,
	fiber.StatusConflict:              apperr.CodeConflict,
	fiber.StatusRequestEntityTooLarge: apperr.CodeBadRequest,
	fiber.StatusTooManyRequests:       apperr.CodeRateLimited,
}

// resolve turns any handler error into an *AppError. Unknown errors become
// an opaque internal error; the cause is kept for logging only.
func resolve(err error) *apperr.AppError {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code, ok := statusCodes[fiberErr.Code]
		if !ok {
			code = apperr.CodeInternalError
		}
		return apperr.New(code, fiberErr.Message, fiberErr.Code)
	}

	return apperr.Internal("an unexpected error occurred").WithError(err)
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(logger.RequestIDKey).(string)
	return id
}

func writeError(c *fiber.Ctx, appErr *apperr.AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{
		RequestID: requestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

// ErrorHandler renders handler errors as ErrorResponse bodies.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		appErr := resolve(err)

		log := logger.WithFields(map[string]any{
			"request_id": requestID(c),
			"error_code": appErr.Code,
			"path":       c.Path(),
		}).WithError(appErr.Err)
		if appErr.Status >= fiber.StatusInternalServerError {
			log.Error("request failed: %s", appErr.Message)
		} else {
			log.Debug("request rejected: %s", appErr.Message)
		}

		return writeError(c, appErr)
	}
}

// RequestID reuses the caller's X-Request-ID or mints one, and exposes it
// through Locals and the user context.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(logger.RequestIDKey, id)
		c.SetUserContext(context.WithValue(c.UserContext(), logger.RequestIDKey, id))
		c.Set(headerRequestID, id)
		return c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		// the error handler runs after us, so take the status it will write
		status := c.Response().StatusCode()
		if err != nil {
			status = resolve(err).Status
		}

		fields := map[string]any{
			"request_id":  requestID(c),
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"ip":          c.IP(),
		}
		if clientID, ok := c.Locals(logger.ClientIDKey).(string); ok && clientID != "" {
			fields["client_id"] = clientID
		}
		log := logger.WithFields(fields)

		switch {
		case status >= 500:
			log.Error("%s %s -> %d", c.Method(), c.Path(), status)
		case status >= 400:
			log.Warn("%s %s -> %d", c.Method(), c.Path(), status)
		default:
			log.Debug("%s %s -> %d", c.Method(), c.Path(), status)
		}
		return err
	}
}

// Recover converts a handler panic into a 500 response.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.WithFields(map[string]any{
				"request_id": requestID(c),
				"panic":      fmt.Sprint(r),
				"path":       c.Path(),
				"stack":      string(debug.Stack()),
			}).Error("panic recovered")
			err = writeError(c, apperr.Internal("an unexpected error occurred"))
		}()
		return c.Next()
	}
}

// SecurityHeaders sets the static hardening headers.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderXFrameOptions, "DENY")
		c.Set(fiber.HeaderReferrerPolicy, "no-referrer")
		return c.Next()
	}
}

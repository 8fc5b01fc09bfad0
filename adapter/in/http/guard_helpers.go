// Package http exposes the guard over fiber: classification, settings, unit
// intake, scan control, stats, health and the SSE render stream.
package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"guard_server/pkg/logger"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// SuccessResponse sends a standardized JSON success response
func SuccessResponse(c *fiber.Ctx, data any) error {
	requestID, _ := c.Locals(logger.RequestIDKey).(string)
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ClientID returns the authenticated client id, or "anonymous" when auth is off.
func ClientID(c *fiber.Ctx) string {
	if id, ok := c.Locals(logger.ClientIDKey).(string); ok && id != "" {
		return id
	}
	return "anonymous"
}

// requestContext returns the request's user context, which carries the
// request and client ids set by middleware.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

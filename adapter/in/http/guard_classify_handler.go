package http

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"guard_server/core/domain"
	"guard_server/core/port/in"
	"guard_server/pkg/logger"
)

// SettingsReader exposes the current settings snapshot.
type SettingsReader interface {
	Settings() domain.Settings
}

// ClassifyHandler serves direct classification requests and the cache-clear
// command.
type ClassifyHandler struct {
	classifier in.ClassifyService
	settings   SettingsReader
	maxLabels  int
}

// NewClassifyHandler creates a classify handler. maxLabels bounds the
// maxLabels option a caller may request.
func NewClassifyHandler(classifier in.ClassifyService, settings SettingsReader, maxLabels int) *ClassifyHandler {
	if maxLabels <= 0 {
		maxLabels = len(domain.AllCategories)
	}
	return &ClassifyHandler{
		classifier: classifier,
		settings:   settings,
		maxLabels:  maxLabels,
	}
}

// Register registers classify routes.
func (h *ClassifyHandler) Register(router fiber.Router) {
	router.Post("/classify", h.Classify)
	router.Post("/cache/clear", h.ClearCache)
}

// ClassifyRequest is the classify request body.
type ClassifyRequest struct {
	Text      *string  `json:"text"`
	MaxLabels *int     `json:"maxLabels"`
	Threshold *float64 `json:"threshold"`
}

// ClassifyResponse is the classify response body.
type ClassifyResponse struct {
	OK     bool           `json:"ok"`
	Labels []domain.Label `json:"labels"`
	Error  string         `json:"error,omitempty"`
}

func classifyError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ClassifyResponse{
		OK:     false,
		Labels: []domain.Label{},
		Error:  message,
	})
}

// Classify handles POST /classify.
// Strategy failures never reach the caller: the response is ok with whatever
// labels the fallback produced, possibly none.
func (h *ClassifyHandler) Classify(c *fiber.Ctx) error {
	var req ClassifyRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return classifyError(c, "invalid request body")
	}
	if req.Text == nil {
		return classifyError(c, "text is required")
	}

	maxLabels := domain.DefaultMaxLabels
	if req.MaxLabels != nil {
		maxLabels = *req.MaxLabels
		if maxLabels < 1 || maxLabels > h.maxLabels {
			return classifyError(c, "maxLabels out of range")
		}
	}

	threshold := domain.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
		if threshold != threshold || threshold < 0 || threshold > 1 {
			return classifyError(c, "threshold must be within [0,1]")
		}
	}

	settings := h.settings.Settings()
	ctx := requestContext(c)
	result := h.classifier.Classify(ctx, *req.Text, in.ClassifyOptions{
		MaxLabels: maxLabels,
		UseRemote: settings.UseRemote,
		APIToken:  settings.APIToken,
	})

	labels := result.AboveThreshold(threshold)
	if len(labels) > maxLabels {
		labels = labels[:maxLabels]
	}

	logger.WithContext(ctx).
		WithField("provenance", result.Provenance).
		WithField("labels", len(labels)).
		Debug("classified request")

	return c.JSON(ClassifyResponse{OK: true, Labels: labels})
}

// ClearCache handles POST /cache/clear.
func (h *ClassifyHandler) ClearCache(c *fiber.Ctx) error {
	if err := h.classifier.ClearCache(requestContext(c)); err != nil {
		logger.WithContext(requestContext(c)).WithError(err).Warn("cache clear incomplete")
		return SuccessResponse(c, fiber.Map{"cleared": true, "warning": "remote cache could not be cleared"})
	}
	return SuccessResponse(c, fiber.Map{"cleared": true})
}

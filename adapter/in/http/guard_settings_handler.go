package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"guard_server/core/domain"
	"guard_server/core/port/out"
	"guard_server/pkg/apperr"
	"guard_server/pkg/logger"
)

// SettingsApplier reacts to a settings change.
type SettingsApplier interface {
	ApplySettings(ctx context.Context, settings domain.Settings)
}

// SettingsHandler reads and replaces the settings snapshot. A successful PUT
// or PATCH is the settings-changed notification.
type SettingsHandler struct {
	store    out.SettingsStore
	applier  SettingsApplier
	defaults domain.Settings
}

// NewSettingsHandler creates a new settings handler. PUT fills omitted keys
// from domain.DefaultSettings unless WithDefaults overrides them.
func NewSettingsHandler(store out.SettingsStore, applier SettingsApplier) *SettingsHandler {
	return &SettingsHandler{store: store, applier: applier, defaults: domain.DefaultSettings()}
}

// WithDefaults sets the snapshot a PUT body is applied onto.
func (h *SettingsHandler) WithDefaults(defaults domain.Settings) *SettingsHandler {
	h.defaults = defaults.Clone()
	return h
}

// Register registers settings routes.
func (h *SettingsHandler) Register(router fiber.Router) {
	settings := router.Group("/settings")
	settings.Get("/", h.GetSettings)
	settings.Put("/", h.ReplaceSettings)
	settings.Patch("/", h.PatchSettings)
}

// GetSettings returns the stored settings with the API token masked.
func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.store.Get(requestContext(c))
	if err != nil {
		return apperr.StoreError("get settings", err)
	}
	return SuccessResponse(c, settings.Masked())
}

// ReplaceSettings stores the body as the whole snapshot. Keys the body
// omits revert to their defaults.
func (h *SettingsHandler) ReplaceSettings(c *fiber.Ctx) error {
	return h.update(c, func(domain.Settings) domain.Settings { return h.defaults.Clone() })
}

// PatchSettings applies only the keys present in the body on top of the
// stored snapshot.
func (h *SettingsHandler) PatchSettings(c *fiber.Ctx) error {
	return h.update(c, domain.Settings.Clone)
}

// update decodes the body onto base(current), persists the result and
// notifies the scan coordinator.
func (h *SettingsHandler) update(c *fiber.Ctx, base func(current domain.Settings) domain.Settings) error {
	ctx := requestContext(c)

	current, err := h.store.Get(ctx)
	if err != nil {
		return apperr.StoreError("get settings", err)
	}

	next := base(current)
	if err := next.UnmarshalJSON(c.Body()); err != nil {
		return apperr.BadRequest("invalid settings body").WithError(err)
	}
	// a client echoing the masked value back keeps the stored token
	if next.APIToken == domain.MaskedToken {
		next.APIToken = current.APIToken
	}
	if err := next.Validate(); err != nil {
		return apperr.ValidationFailed(err.Error())
	}

	if err := h.store.Save(ctx, next); err != nil {
		return apperr.StoreError("save settings", err)
	}
	h.applier.ApplySettings(ctx, next)

	logger.WithContext(ctx).
		WithField("method", c.Method()).
		WithField("enabled", next.Enabled).
		WithField("threshold", next.Threshold).
		WithField("use_remote", next.UseRemote).
		Info("settings updated")

	return SuccessResponse(c, next.Masked())
}

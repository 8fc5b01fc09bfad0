package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"guard_server/adapter/in/worker"
	"guard_server/adapter/out/messaging"
	"guard_server/core/domain"
	"guard_server/core/service/scan"
	"guard_server/pkg/apperr"
	"guard_server/pkg/logger"
)

// UnitStore is the inbox the scan loop reads from.
type UnitStore interface {
	Add(units ...domain.TextUnit) []domain.UnitID
	Get(id domain.UnitID) (domain.TextUnit, bool)
}

// ScanController is the part of the scan coordinator the API drives.
type ScanController interface {
	Scan(ctx context.Context) int
	Notify()
	Reset()
	Unit(id domain.UnitID) (scan.UnitEntry, bool)
	Reveal(ctx context.Context, id domain.UnitID) (bool, error)
}

// UnitQueue hands units to the stream consumed by worker processes.
type UnitQueue interface {
	PublishUnit(ctx context.Context, msg messaging.UnitMessage) error
}

// ScanHandler accepts discovered units and exposes scan control.
type ScanHandler struct {
	units   UnitStore
	scanner ScanController
	queue   UnitQueue
}

// NewScanHandler creates a scan handler.
func NewScanHandler(units UnitStore, scanner ScanController) *ScanHandler {
	return &ScanHandler{units: units, scanner: scanner}
}

// WithQueue enables POST /units?stream=true.
func (h *ScanHandler) WithQueue(queue UnitQueue) *ScanHandler {
	h.queue = queue
	return h
}

// Register registers unit and scan routes.
func (h *ScanHandler) Register(router fiber.Router) {
	units := router.Group("/units")
	units.Post("/", h.AddUnits)
	units.Get("/:id", h.GetUnit)
	units.Post("/:id/reveal", h.RevealUnit)

	router.Post("/scan", h.ScanNow)
	router.Post("/scan/reset", h.ResetScan)
}

// UnitView is the API view of one unit.
type UnitView struct {
	ID      domain.UnitID          `json:"id"`
	Text    string                 `json:"text,omitempty"`
	State   domain.ProcessingState `json:"state"`
	Action  *domain.Action         `json:"action,omitempty"`
	Cleared bool                   `json:"visually_cleared"`
}

// AddUnits handles POST /units. Blank texts are dropped; ids are generated
// for units without one.
func (h *ScanHandler) AddUnits(c *fiber.Ctx) error {
	msgs, err := worker.DecodeUnitMessages(c.Body())
	if err != nil {
		return apperr.BadRequest("invalid units body").WithError(err)
	}

	units := make([]domain.TextUnit, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		units = append(units, domain.TextUnit{ID: domain.UnitID(m.ID), Text: m.Text})
	}
	if len(units) == 0 {
		return apperr.ValidationFailed("no units with text")
	}

	if c.QueryBool("stream") {
		return h.enqueue(c, units)
	}

	ids := h.units.Add(units...)
	h.scanner.Notify()

	logger.WithContext(requestContext(c)).
		WithField("client_id", ClientID(c)).
		Debug("accepted %d units", len(ids))

	c.Status(fiber.StatusAccepted)
	return SuccessResponse(c, fiber.Map{"ids": ids})
}

// enqueue publishes units to the unit stream instead of the local inbox.
func (h *ScanHandler) enqueue(c *fiber.Ctx, units []domain.TextUnit) error {
	if h.queue == nil {
		return apperr.BadRequest("unit stream is not configured")
	}

	ctx := requestContext(c)
	ids := make([]domain.UnitID, 0, len(units))
	for _, u := range units {
		id := domain.UnitID(strings.TrimSpace(string(u.ID)))
		if id == "" {
			id = domain.NewUnitID()
		}
		if err := h.queue.PublishUnit(ctx, messaging.UnitMessage{ID: string(id), Text: u.Text}); err != nil {
			return apperr.ExternalService("unit stream", err)
		}
		ids = append(ids, id)
	}

	c.Status(fiber.StatusAccepted)
	return SuccessResponse(c, fiber.Map{"ids": ids, "queued": true})
}

// GetUnit handles GET /units/:id.
func (h *ScanHandler) GetUnit(c *fiber.Ctx) error {
	id := domain.UnitID(c.Params("id"))

	view := UnitView{ID: id, State: domain.StateUnprocessed}
	unit, known := h.units.Get(id)
	if known {
		view.Text = unit.Text
	}
	if entry, ok := h.scanner.Unit(id); ok {
		known = true
		view.State = entry.State
		view.Cleared = entry.Cleared
		if entry.State.Terminal() {
			action := entry.Action
			view.Action = &action
		}
	}
	if !known {
		return apperr.NotFound("unit")
	}
	return SuccessResponse(c, view)
}

// RevealUnit handles POST /units/:id/reveal, the per-unit "show anyway".
func (h *ScanHandler) RevealUnit(c *fiber.Ctx) error {
	id := domain.UnitID(c.Params("id"))
	revealed, err := h.scanner.Reveal(requestContext(c), id)
	if err != nil {
		logger.WithContext(requestContext(c)).WithError(err).
			WithField("unit_id", id).
			Warn("reveal render failed")
	}
	if !revealed {
		return apperr.Conflict("unit is not suppressed")
	}
	return SuccessResponse(c, fiber.Map{"id": id, "revealed": true})
}

// ScanNow handles POST /scan.
func (h *ScanHandler) ScanNow(c *fiber.Ctx) error {
	started := h.scanner.Scan(requestContext(c))
	return SuccessResponse(c, fiber.Map{"started": started})
}

// ResetScan handles POST /scan/reset. Every unit becomes eligible again and
// is picked up by the next scan.
func (h *ScanHandler) ResetScan(c *fiber.Ctx) error {
	h.scanner.Reset()
	h.scanner.Notify()
	logger.WithContext(requestContext(c)).Info("scan registry reset")
	return SuccessResponse(c, fiber.Map{"reset": true})
}

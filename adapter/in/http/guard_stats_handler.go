package http

import (
	"github.com/gofiber/fiber/v2"

	"guard_server/adapter/out/realtime"
	"guard_server/core/service/classification"
	"guard_server/core/service/common"
	"guard_server/core/service/scan"
)

// StatsHandler reports dispatcher, cache, coordinator and stream counters.
// Any source may be nil.
type StatsHandler struct {
	dispatcher  *classification.Dispatcher
	cache       *common.ResultCache
	coordinator *scan.Coordinator
	renderer    *realtime.SSERenderer
}

func NewStatsHandler(
	dispatcher *classification.Dispatcher,
	cache *common.ResultCache,
	coordinator *scan.Coordinator,
	renderer *realtime.SSERenderer,
) *StatsHandler {
	return &StatsHandler{
		dispatcher:  dispatcher,
		cache:       cache,
		coordinator: coordinator,
		renderer:    renderer,
	}
}

func (h *StatsHandler) Register(router fiber.Router) {
	router.Get("/stats", h.Stats)
}

// Stats handles GET /stats.
func (h *StatsHandler) Stats(c *fiber.Ctx) error {
	stats := fiber.Map{}
	if h.dispatcher != nil {
		stats["dispatcher"] = h.dispatcher.Stats()
	}
	if h.cache != nil {
		stats["cache"] = h.cache.Stats()
	}
	if h.coordinator != nil {
		stats["scan"] = h.coordinator.Stats()
	}
	if h.renderer != nil {
		stats["sse"] = h.renderer.GetMetrics()
	}
	return SuccessResponse(c, stats)
}

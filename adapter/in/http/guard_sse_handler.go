package http

import (
	"bufio"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"guard_server/adapter/out/realtime"
	"guard_server/core/domain"
)

// SSEHandler streams renderer events (suppress, clear_suppression) to
// subscribed clients. A client may pass ?unit=<id> to follow one unit.
type SSEHandler struct {
	hub *realtime.SSEHub
	log zerolog.Logger
}

func NewSSEHandler(hub *realtime.SSEHub, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		hub: hub,
		log: log.With().Str("handler", "sse").Logger(),
	}
}

func (h *SSEHandler) Register(router fiber.Router) {
	router.Get("/events", h.Stream)
	router.Get("/events/status", h.Status)
}

// Stream holds the connection open and writes one SSE frame per render
// event. The frame id is the event sequence number.
func (h *SSEHandler) Stream(c *fiber.Ctx) error {
	clientID := ClientID(c)
	unitFilter := domain.UnitID(c.Query("unit"))
	client := h.hub.CreateClient(clientID)
	log := h.log.With().Str("client_id", clientID).Logger()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	log.Info().Str("unit", string(unitFilter)).Msg("render stream opened")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		heartbeat := time.NewTicker(client.HeartbeatInterval())
		defer heartbeat.Stop()
		defer func() {
			client.Close()
			log.Info().Msg("render stream closed")
		}()

		w.WriteString("event: connected\ndata: {\"status\":\"connected\"}\n\n")
		if w.Flush() != nil {
			return
		}

		for {
			select {
			case event, ok := <-client.Events:
				if !ok {
					return
				}
				if unitFilter != "" && event.UnitID != unitFilter {
					continue
				}
				if err := writeEvent(w, event); err != nil {
					log.Debug().Err(err).Str("event", string(event.Type)).Msg("render stream write failed")
					return
				}
			case <-heartbeat.C:
				w.WriteString(": ping\n\n")
				if w.Flush() != nil {
					return
				}
			case <-client.Done:
				return
			}
		}
	})

	return nil
}

func writeEvent(w *bufio.Writer, event *realtime.Event) error {
	data, err := realtime.SerializeEvent(event)
	if err != nil {
		return err
	}
	w.WriteString("id: " + strconv.FormatInt(event.Seq, 10) + "\n")
	w.WriteString("event: " + string(event.Type) + "\n")
	w.WriteString("data: ")
	w.Write(data)
	w.WriteString("\n\n")
	return w.Flush()
}

// Status reports connection counts and delivery metrics.
func (h *SSEHandler) Status(c *fiber.Ctx) error {
	renderer := h.hub.Renderer()
	return SuccessResponse(c, fiber.Map{
		"client_id":   ClientID(c),
		"connections": renderer.ConnectedCount(),
		"metrics":     renderer.GetMetrics(),
	})
}

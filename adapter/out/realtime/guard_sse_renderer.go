// Package realtime pushes render decisions to connected clients over SSE.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"guard_server/core/domain"
	"guard_server/core/port/out"
)

// =============================================================================
// SSE Renderer - out.Renderer 구현
// =============================================================================

// EventType names a render event.
type EventType string

const (
	EventSuppress         EventType = "suppress"
	EventClearSuppression EventType = "clear_suppression"
)

// Event is one render instruction.
type Event struct {
	Type      EventType       `json:"type"`
	UnitID    domain.UnitID   `json:"unit_id"`
	Category  domain.Category `json:"category,omitempty"`
	Score     float64         `json:"score,omitempty"`
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
}

// SSERenderer implements out.Renderer by broadcasting events to every
// subscribed client.
type SSERenderer struct {
	clients map[chan *Event]string // channel -> client id
	mu      sync.RWMutex
	log     zerolog.Logger

	messagesSent    atomic.Int64
	messagesDropped atomic.Int64
	seqCounter      atomic.Int64
}

var _ out.Renderer = (*SSERenderer)(nil)

// NewSSERenderer creates a new SSE renderer.
func NewSSERenderer(log zerolog.Logger) *SSERenderer {
	return &SSERenderer{
		clients: make(map[chan *Event]string),
		log:     log.With().Str("component", "sse_renderer").Logger(),
	}
}

// Suppress tells clients to hide a unit.
func (r *SSERenderer) Suppress(ctx context.Context, unitID domain.UnitID, category domain.Category, score float64) error {
	r.broadcast(&Event{Type: EventSuppress, UnitID: unitID, Category: category, Score: score})
	return nil
}

// ClearSuppression tells clients to show a unit again.
func (r *SSERenderer) ClearSuppression(ctx context.Context, unitID domain.UnitID) error {
	r.broadcast(&Event{Type: EventClearSuppression, UnitID: unitID})
	return nil
}

// Subscribe creates a new subscription channel.
func (r *SSERenderer) Subscribe(clientID string) <-chan *Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan *Event, 256) // Buffer for backpressure
	r.clients[ch] = clientID

	r.log.Debug().
		Str("client_id", clientID).
		Int("total_connections", len(r.clients)).
		Msg("client subscribed")

	return ch
}

// Unsubscribe removes a subscription channel.
func (r *SSERenderer) Unsubscribe(ch <-chan *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c, id := range r.clients {
		if c == ch {
			delete(r.clients, c)
			close(c)
			r.log.Debug().Str("client_id", id).Msg("client unsubscribed")
			return
		}
	}
}

func (r *SSERenderer) broadcast(event *Event) {
	event.Seq = r.seqCounter.Add(1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for ch, id := range r.clients {
		select {
		case ch <- event:
			r.messagesSent.Add(1)
		default:
			// Channel full, drop message (backpressure)
			r.messagesDropped.Add(1)
			r.log.Warn().
				Str("client_id", id).
				Str("event_type", string(event.Type)).
				Int64("seq", event.Seq).
				Msg("dropped event due to full buffer")
		}
	}
}

// ConnectedCount returns the number of open subscriptions.
func (r *SSERenderer) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// GetMetrics returns renderer metrics.
func (r *SSERenderer) GetMetrics() SSEMetrics {
	return SSEMetrics{
		Connections:     r.ConnectedCount(),
		MessagesSent:    r.messagesSent.Load(),
		MessagesDropped: r.messagesDropped.Load(),
	}
}

// SSEMetrics holds SSE renderer metrics.
type SSEMetrics struct {
	Connections     int   `json:"connections"`
	MessagesSent    int64 `json:"messages_sent"`
	MessagesDropped int64 `json:"messages_dropped"`
}

// =============================================================================
// SSE Hub - HTTP Handler 연결용
// =============================================================================

// SSEHub manages SSE connections for HTTP handlers.
type SSEHub struct {
	renderer *SSERenderer

	heartbeatInterval time.Duration
}

// NewSSEHub creates a new SSE hub.
func NewSSEHub(renderer *SSERenderer) *SSEHub {
	return &SSEHub{
		renderer:          renderer,
		heartbeatInterval: 30 * time.Second,
	}
}

// Renderer returns the underlying renderer.
func (h *SSEHub) Renderer() *SSERenderer {
	return h.renderer
}

// CreateClient creates a new SSE client.
func (h *SSEHub) CreateClient(clientID string) *SSEClient {
	return &SSEClient{
		ClientID: clientID,
		Events:   h.renderer.Subscribe(clientID),
		Done:     make(chan struct{}),
		hub:      h,
	}
}

// SSEClient represents an SSE client connection.
type SSEClient struct {
	ClientID string
	Events   <-chan *Event
	Done     chan struct{}
	hub      *SSEHub
	once     sync.Once
}

// Close closes the client connection.
func (c *SSEClient) Close() {
	c.once.Do(func() {
		close(c.Done)
		c.hub.renderer.Unsubscribe(c.Events)
	})
}

// HeartbeatInterval returns the heartbeat interval.
func (c *SSEClient) HeartbeatInterval() time.Duration {
	return c.hub.heartbeatInterval
}

// SerializeEvent converts an Event to the SSE data payload.
func SerializeEvent(event *Event) ([]byte, error) {
	return json.Marshal(event)
}

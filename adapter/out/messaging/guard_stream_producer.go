// Package messaging provides Redis Streams adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"guard_server/core/domain"
	"guard_server/core/port/out"
)

// Stream names
const (
	StreamUnits     = "guard:units"
	StreamDecisions = "guard:decisions"
)

// UnitMessage is the payload carried in the data field of StreamUnits.
type UnitMessage struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// ProducerConfig configures a RedisProducer.
type ProducerConfig struct {
	UnitStream     string
	DecisionStream string
	MaxLen         int64 // approximate trim per stream, 0 disables
}

// RedisProducer implements out.EventPublisher using Redis Streams.
type RedisProducer struct {
	client *redis.Client
	config ProducerConfig
}

var _ out.EventPublisher = (*RedisProducer)(nil)

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client, cfg ProducerConfig) *RedisProducer {
	if cfg.UnitStream == "" {
		cfg.UnitStream = StreamUnits
	}
	if cfg.DecisionStream == "" {
		cfg.DecisionStream = StreamDecisions
	}
	return &RedisProducer{client: client, config: cfg}
}

// PublishDecision publishes a decision record.
func (p *RedisProducer) PublishDecision(ctx context.Context, record domain.DecisionRecord) error {
	return p.publish(ctx, p.config.DecisionStream, record)
}

// PublishUnit enqueues a unit for classification by any consumer.
func (p *RedisProducer) PublishUnit(ctx context.Context, msg UnitMessage) error {
	return p.publish(ctx, p.config.UnitStream, msg)
}

func (p *RedisProducer) publish(ctx context.Context, stream string, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}
	if p.config.MaxLen > 0 {
		args.MaxLen = p.config.MaxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

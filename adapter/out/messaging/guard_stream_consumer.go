package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DeadLetterSuffix is appended to a stream name to form its dead letter
// stream.
const DeadLetterSuffix = ":dead"

// JobHandler processes the data field of one stream message.
type JobHandler interface {
	Handle(ctx context.Context, stream string, data []byte) error
}

// ConsumerConfig holds consumer configuration. Zero durations and counts
// fall back to defaults.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Handler  JobHandler
	Logger   zerolog.Logger

	BatchSize int64
	Block     time.Duration

	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.PendingCheckInterval <= 0 {
		cfg.PendingCheckInterval = 30 * time.Second
	}
	if cfg.PendingIdleTime <= 0 {
		cfg.PendingIdleTime = 2 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return cfg
}

// ConsumerStats counts message outcomes since start.
type ConsumerStats struct {
	Handled      int64 `json:"handled"`
	Failed       int64 `json:"failed"`
	Reclaimed    int64 `json:"reclaimed"`
	DeadLettered int64 `json:"dead_lettered"`
}

// Consumer reads unit messages from Redis Streams as a member of a consumer
// group. Failed messages stay pending, are reclaimed after PendingIdleTime,
// and move to <stream>:dead once MaxRetries deliveries have failed.
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	log    zerolog.Logger

	handled      atomic.Int64
	failed       atomic.Int64
	reclaimed    atomic.Int64
	deadLettered atomic.Int64
}

func NewConsumer(client *redis.Client, cfg *ConsumerConfig) *Consumer {
	c := cfg.withDefaults()
	return &Consumer{
		client: client,
		cfg:    c,
		log:    c.Logger.With().Str("component", "stream_consumer").Str("group", c.Group).Logger(),
	}
}

// Stats returns a snapshot of the outcome counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled:      c.handled.Load(),
		Failed:       c.failed.Load(),
		Reclaimed:    c.reclaimed.Load(),
		DeadLettered: c.deadLettered.Load(),
	}
}

// Run consumes until ctx is done and returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.cfg.Streams) == 0 {
		return errors.New("consumer has no streams")
	}

	c.log.Info().Str("consumer", c.cfg.Consumer).Strs("streams", c.cfg.Streams).Msg("consumer starting")
	for _, stream := range c.cfg.Streams {
		c.ensureGroup(ctx, stream)
	}

	go c.reclaimLoop(ctx)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.read(ctx)
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			c.log.Error().Err(err).Dur("backoff", backoff).Msg("stream read failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.deliver(ctx, s.Stream, msg)
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context, stream string) {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		c.log.Warn().Err(err).Str("stream", stream).Msg("consumer group create failed")
	}
}

func (c *Consumer) read(ctx context.Context) ([]redis.XStream, error) {
	n := len(c.cfg.Streams)
	keys := make([]string, 2*n)
	copy(keys, c.cfg.Streams)
	for i := n; i < 2*n; i++ {
		keys[i] = ">"
	}

	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  keys,
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
}

// deliver runs the handler and acks on success. A failed message is left
// pending for the reclaim loop.
func (c *Consumer) deliver(ctx context.Context, stream string, msg redis.XMessage) bool {
	log := c.log.With().Str("stream", stream).Str("id", msg.ID).Logger()

	if err := c.processMessage(ctx, stream, msg); err != nil {
		c.failed.Add(1)
		log.Error().Err(err).Msg("message handling failed")
		return false
	}
	if err := c.client.XAck(ctx, stream, c.cfg.Group, msg.ID).Err(); err != nil {
		log.Error().Err(err).Msg("message ack failed")
		return false
	}
	c.handled.Add(1)
	return true
}

func (c *Consumer) processMessage(ctx context.Context, stream string, msg redis.XMessage) error {
	raw, ok := msg.Values["data"]
	if !ok {
		return errors.New("message has no data field")
	}
	data, ok := raw.(string)
	if !ok {
		return fmt.Errorf("message data is %T, want string", raw)
	}
	return c.cfg.Handler.Handle(ctx, stream, []byte(data))
}

func (c *Consumer) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stream := range c.cfg.Streams {
				c.reclaim(ctx, stream)
			}
		}
	}
}

// reclaim retries idle pending messages of one stream, dead-lettering those
// that have used up their deliveries.
func (c *Consumer) reclaim(ctx context.Context, stream string) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error().Err(err).Str("stream", stream).Msg("pending scan failed")
		}
		return
	}

	var retry []string
	for _, p := range pending {
		if p.Idle < c.cfg.PendingIdleTime {
			continue
		}
		if int(p.RetryCount) >= c.cfg.MaxRetries {
			c.deadLetter(ctx, stream, p.ID, p.RetryCount)
			continue
		}
		retry = append(retry, p.ID)
	}
	if len(retry) == 0 {
		return
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.PendingIdleTime,
		Messages: retry,
	}).Result()
	if err != nil {
		c.log.Error().Err(err).Str("stream", stream).Int("count", len(retry)).Msg("pending claim failed")
		return
	}
	for _, msg := range claimed {
		if c.deliver(ctx, stream, msg) {
			c.reclaimed.Add(1)
		}
	}
}

// deadLetter copies the message to <stream>:dead and acks the original. A
// failed read leaves the entry pending for the next reclaim pass; an entry
// already trimmed from the stream is only acked.
func (c *Consumer) deadLetter(ctx context.Context, stream, id string, deliveries int64) {
	log := c.log.With().Str("stream", stream).Str("id", id).Int64("deliveries", deliveries).Logger()

	msgs, err := c.client.XRange(ctx, stream, id, id).Result()
	if err != nil {
		log.Error().Err(err).Msg("dead letter source unreadable")
		return
	}

	if len(msgs) == 0 {
		log.Warn().Msg("dead letter source trimmed, dropping")
	} else {
		values := map[string]interface{}{
			"source_stream": stream,
			"source_id":     id,
			"deliveries":    deliveries,
			"failed_at":     time.Now().UTC().Format(time.RFC3339),
			"consumer":      c.cfg.Consumer,
		}
		if data, ok := msgs[0].Values["data"]; ok {
			values["data"] = data
		}
		if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: stream + DeadLetterSuffix, Values: values}).Err(); err != nil {
			log.Error().Err(err).Msg("dead letter write failed")
			return
		}
		c.deadLettered.Add(1)
		log.Warn().Msg("message dead-lettered")
	}

	if err := c.client.XAck(ctx, stream, c.cfg.Group, id).Err(); err != nil {
		log.Error().Err(err).Msg("dead letter ack failed")
	}
}

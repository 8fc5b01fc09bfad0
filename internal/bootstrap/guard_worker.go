package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"guard_server/adapter/in/worker"
	"guard_server/adapter/out/messaging"
)

const consumerGroup = "guard-workers"

// Worker feeds units from the Redis unit stream into the shared inbox.
type Worker struct {
	consumer *messaging.Consumer
	log      zerolog.Logger
}

// NewWorker wires the stream consumer. Without Redis the worker idles and
// units arrive over HTTP only.
func NewWorker(deps *Dependencies) *Worker {
	cfg := deps.Config
	w := &Worker{log: deps.Log.With().Str("component", "worker").Logger()}
	if deps.Redis == nil {
		w.log.Warn().Msg("redis unavailable, unit stream disabled")
		return w
	}

	w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:                consumerGroup,
		Consumer:             cfg.ConsumerName,
		Streams:              []string{cfg.UnitStream},
		Handler:              worker.NewUnitHandler(deps.Inbox, deps.Coordinator),
		Logger:               w.log,
		BatchSize:            int64(cfg.ConsumerBatchSize),
		Block:                time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		PendingCheckInterval: time.Duration(cfg.ConsumerPendingSec) * time.Second,
		MaxRetries:           cfg.ConsumerMaxRetries,
	})
	w.log.Info().Str("stream", cfg.UnitStream).Msg("unit consumer configured")
	return w
}

// Run blocks until ctx is done. Cancellation is a clean stop.
func (w *Worker) Run(ctx context.Context) error {
	if w.consumer == nil {
		<-ctx.Done()
		return nil
	}

	err := w.consumer.Run(ctx)
	stats := w.consumer.Stats()
	w.log.Info().
		Int64("handled", stats.Handled).
		Int64("failed", stats.Failed).
		Int64("reclaimed", stats.Reclaimed).
		Int64("dead_lettered", stats.DeadLettered).
		Msg("unit consumer stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

package classification

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"guard_server/core/domain"
	"guard_server/core/port/in"
	"guard_server/core/port/out"
	"guard_server/core/service/normalize"
	"guard_server/pkg/logger"
	"guard_server/pkg/metrics"
)

// =============================================================================
// Classification Dispatcher
// =============================================================================

// DispatcherConfig holds dispatcher tuning.
type DispatcherConfig struct {
	RemoteTimeout time.Duration // bound on a single remote call
}

// DefaultDispatcherConfig returns default dispatcher configuration.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{RemoteTimeout: 10 * time.Second}
}

// DispatcherDeps holds dispatcher collaborators. Remote and Limiter may be nil.
type DispatcherDeps struct {
	Heuristic out.Classifier
	Remote    out.RemoteClassifier
	Cache     out.ResultCache
	Limiter   out.SlotWaiter
}

// Dispatcher runs normalize, cache lookup, strategy selection with fallback,
// sort and cache write. It never fails.
type Dispatcher struct {
	config    *DispatcherConfig
	heuristic out.Classifier
	remote    out.RemoteClassifier
	cache     out.ResultCache
	limiter   out.SlotWaiter

	group   singleflight.Group
	latency *metrics.LatencyTracker

	cacheHits      atomic.Int64
	skipped        atomic.Int64
	remoteCalls    atomic.Int64
	fallbacks      atomic.Int64
	heuristicCalls atomic.Int64
}

var _ in.ClassifyService = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps DispatcherDeps, config *DispatcherConfig) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	if deps.Heuristic == nil {
		deps.Heuristic = NewHeuristicClassifier(nil)
	}
	return &Dispatcher{
		config:    config,
		heuristic: deps.Heuristic,
		remote:    deps.Remote,
		cache:     deps.Cache,
		limiter:   deps.Limiter,
		latency:   metrics.NewLatencyTracker(500),
	}
}

// Classify classifies raw text. Skipped input yields an empty, uncached result.
func (d *Dispatcher) Classify(ctx context.Context, raw string, opts in.ClassifyOptions) domain.ClassificationResult {
	text := normalize.Normalize(raw)
	if !normalize.Valid(text) {
		d.skipped.Add(1)
		return domain.EmptyResult()
	}

	key := normalize.CacheKey(text)
	if d.cache != nil {
		if cached, ok := d.cache.Get(ctx, key); ok {
			d.cacheHits.Add(1)
			return cached.Clone()
		}
	}

	v, _, _ := d.group.Do(key, func() (interface{}, error) {
		// another caller may have filled the cache while we queued
		if d.cache != nil {
			if cached, ok := d.cache.Get(ctx, key); ok {
				d.cacheHits.Add(1)
				return cached, nil
			}
		}
		result := d.run(ctx, text, opts)
		if d.cache != nil {
			d.cache.Put(ctx, key, result)
		}
		return result, nil
	})

	return v.(domain.ClassificationResult).Clone()
}

func (d *Dispatcher) run(ctx context.Context, text string, opts in.ClassifyOptions) domain.ClassificationResult {
	if opts.UseRemote && opts.APIToken != "" && d.remote != nil {
		labels, err := d.classifyRemote(ctx, text, opts.APIToken)
		if err == nil {
			domain.SortLabels(labels)
			if opts.MaxLabels > 0 && len(labels) > opts.MaxLabels {
				labels = labels[:opts.MaxLabels]
			}
			return domain.ClassificationResult{Labels: labels, Provenance: domain.ProvenanceRemote}
		}

		d.fallbacks.Add(1)
		logger.WithContext(ctx).
			WithField("classifier", d.remote.Name()).
			WithError(err).
			Warn("remote classification failed, using heuristic")
	}

	d.heuristicCalls.Add(1)
	labels, err := d.heuristic.Classify(ctx, text)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("heuristic classification failed")
		return domain.EmptyResult()
	}
	domain.SortLabels(labels)
	return domain.ClassificationResult{Labels: labels, Provenance: domain.ProvenanceHeuristic}
}

func (d *Dispatcher) classifyRemote(ctx context.Context, text, token string) ([]domain.Label, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			if !errors.Is(err, domain.ErrRateLimitWait) {
				err = errors.Join(domain.ErrRateLimitWait, err)
			}
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.config.RemoteTimeout)
	defer cancel()

	d.remoteCalls.Add(1)
	start := time.Now()
	labels, err := d.remote.ClassifyWithToken(callCtx, text, token)
	d.latency.Record(time.Since(start))
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = []domain.Label{}
	}
	return labels, nil
}

// ClearCache drops every cached result.
func (d *Dispatcher) ClearCache(ctx context.Context) error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Clear(ctx)
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	CacheHits      int64          `json:"cache_hits"`
	Skipped        int64          `json:"skipped"`
	RemoteCalls    int64          `json:"remote_calls"`
	Fallbacks      int64          `json:"fallbacks"`
	HeuristicCalls int64          `json:"heuristic_calls"`
	RemoteLatency  map[string]any `json:"remote_latency"`
}

// Stats returns current counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		CacheHits:      d.cacheHits.Load(),
		Skipped:        d.skipped.Load(),
		RemoteCalls:    d.remoteCalls.Load(),
		Fallbacks:      d.fallbacks.Load(),
		HeuristicCalls: d.heuristicCalls.Load(),
		RemoteLatency:  d.latency.Stats().ToMap(),
	}
}

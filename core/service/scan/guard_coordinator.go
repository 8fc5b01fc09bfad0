// Package scan discovers text units, classifies each exactly once and hands
// the decisions to the renderer.
package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"guard_server/core/domain"
	"guard_server/core/port/in"
	"guard_server/core/port/out"
	"guard_server/core/service/classification"
	"guard_server/pkg/logger"
)

// =============================================================================
// Scan Coordinator
// =============================================================================
//
// Three triggers feed Scan: the startup pass, debounced Notify calls and the
// periodic sweep. Every unit goes through ProcessingRegistry.TryBegin before
// a goroutine is spawned for it, so overlapping scans never double-process.

// Config holds coordinator timing and limits.
type Config struct {
	Debounce      time.Duration
	SweepInterval time.Duration
	Concurrency   int
	MaxLabels     int
}

// DefaultConfig returns default coordinator configuration.
func DefaultConfig() *Config {
	return &Config{
		Debounce:      300 * time.Millisecond,
		SweepInterval: 4 * time.Second,
		Concurrency:   8,
		MaxLabels:     domain.DefaultMaxLabels,
	}
}

// Deps are the coordinator's collaborators. Recorder and Publisher are optional.
type Deps struct {
	Source     out.UnitSource
	Classifier in.ClassifyService
	Engine     *classification.DecisionEngine
	Renderer   out.Renderer
	Recorder   out.DecisionRecorder
	Publisher  out.EventPublisher
}

// Coordinator implements in.ScanService.
type Coordinator struct {
	config   *Config
	source   out.UnitSource
	classify in.ClassifyService
	engine   *classification.DecisionEngine
	renderer out.Renderer
	recorder out.DecisionRecorder
	events   out.EventPublisher

	registry *ProcessingRegistry
	settings atomic.Pointer[domain.Settings]
	sem      chan struct{}

	// held across decide+render and across settings changes so a disable
	// cannot interleave with a unit becoming flagged
	renderMu sync.Mutex

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	loop     sync.WaitGroup

	started    atomic.Int64
	suppressed atomic.Int64
	scans      atomic.Int64
}

var _ in.ScanService = (*Coordinator)(nil)

// NewCoordinator creates a coordinator with the given initial settings.
func NewCoordinator(deps Deps, settings domain.Settings, config *Config) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if deps.Engine == nil {
		deps.Engine = classification.NewDecisionEngine()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		config:   config,
		source:   deps.Source,
		classify: deps.Classifier,
		engine:   deps.Engine,
		renderer: deps.Renderer,
		recorder: deps.Recorder,
		events:   deps.Publisher,
		registry: NewProcessingRegistry(),
		sem:      make(chan struct{}, config.Concurrency),
		ctx:      ctx,
		cancel:   cancel,
	}
	s := settings.Clone()
	c.settings.Store(&s)
	return c
}

// Start runs the initial scan and then sweeps every SweepInterval until ctx
// is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	logger.Info("[ScanCoordinator] Starting...")
	c.loop.Add(1)
	go c.run(ctx)
}

// Stop cancels the loop and pending debounced scans, then waits for
// in-flight classifications to finish.
func (c *Coordinator) Stop() {
	logger.Info("[ScanCoordinator] Stopping...")
	c.cancel()

	c.debounceMu.Lock()
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceMu.Unlock()

	c.loop.Wait()
	c.inflight.Wait()
	logger.Info("[ScanCoordinator] Stopped")
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.loop.Done()

	if n := c.Scan(c.ctx); n > 0 {
		logger.Info("[ScanCoordinator] Initial scan started %d units", n)
	}

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Scan(c.ctx)
		}
	}
}

// Scan starts classification for every pending unit not seen before and
// returns how many were started. It does not wait for them.
func (c *Coordinator) Scan(ctx context.Context) int {
	settings := c.Settings()
	if !settings.Enabled {
		return 0
	}
	c.scans.Add(1)

	units, err := c.source.Pending(ctx)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Warn("[ScanCoordinator] failed to list pending units")
		return 0
	}

	// classification outlives the trigger that started it
	workCtx := context.WithoutCancel(ctx)

	started := 0
	for _, u := range units {
		if u.ID == "" || !c.registry.TryBegin(u.ID) {
			continue
		}
		started++
		c.inflight.Add(1)
		go func(unit domain.TextUnit) {
			defer c.inflight.Done()
			c.sem <- struct{}{}
			defer func() { <-c.sem }()
			c.process(workCtx, unit, settings)
		}(u)
	}

	c.started.Add(int64(started))
	return started
}

func (c *Coordinator) process(ctx context.Context, unit domain.TextUnit, dispatched domain.Settings) {
	result := c.classify.Classify(ctx, unit.Text, in.ClassifyOptions{
		MaxLabels: c.config.MaxLabels,
		UseRemote: dispatched.UseRemote,
		APIToken:  dispatched.APIToken,
	})

	c.renderMu.Lock()
	settings := c.Settings()

	action := c.engine.Decide(result.Labels, settings)
	state := domain.StateCleared
	if action.IsSuppress() {
		state = domain.StateFlagged
	}

	if !c.registry.Complete(unit.ID, state, action) {
		c.renderMu.Unlock()
		return
	}
	switch {
	case state != domain.StateFlagged:
	case !settings.Enabled:
		// switched off while in flight: terminal but never shown suppressed
		c.registry.MarkCleared(unit.ID)
	default:
		c.suppressed.Add(1)
		if err := c.renderer.Suppress(ctx, unit.ID, action.Category, action.Score); err != nil {
			logger.WithContext(ctx).WithError(err).
				WithField("unit_id", unit.ID).
				Warn("[ScanCoordinator] renderer suppress failed")
		}
	}
	c.renderMu.Unlock()

	c.record(ctx, domain.NewDecisionRecord(unit.ID, action, result, settings.Threshold))
}

func (c *Coordinator) record(ctx context.Context, rec domain.DecisionRecord) {
	if c.recorder != nil {
		if err := c.recorder.Record(ctx, rec); err != nil {
			logger.WithContext(ctx).WithError(err).
				WithField("unit_id", rec.UnitID).
				Warn("[ScanCoordinator] failed to record decision")
		}
	}
	if c.events != nil {
		if err := c.events.PublishDecision(ctx, rec); err != nil {
			logger.WithContext(ctx).WithError(err).
				WithField("unit_id", rec.UnitID).
				Warn("[ScanCoordinator] failed to publish decision")
		}
	}
}

// Notify schedules a scan after the debounce window. Calls inside the
// window push the scan back, so a burst yields a single scan.
func (c *Coordinator) Notify() {
	if c.ctx.Err() != nil {
		return
	}

	c.debounceMu.Lock()
	defer c.debounceMu.Unlock()

	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = time.AfterFunc(c.config.Debounce, func() {
		if c.ctx.Err() != nil {
			return
		}
		c.Scan(c.ctx)
	})
}

// ApplySettings installs a new settings snapshot. Disabling clears every
// visible suppression once; enabling starts a scan of units not yet seen.
func (c *Coordinator) ApplySettings(ctx context.Context, settings domain.Settings) {
	s := settings.Clone()

	c.renderMu.Lock()
	c.settings.Store(&s)
	var cleared []domain.UnitID
	if !s.Enabled {
		cleared = c.registry.TakeFlagged()
		for _, id := range cleared {
			if err := c.renderer.ClearSuppression(ctx, id); err != nil {
				logger.WithContext(ctx).WithError(err).
					WithField("unit_id", id).
					Warn("[ScanCoordinator] renderer clear failed")
			}
		}
	}
	c.renderMu.Unlock()

	if !s.Enabled {
		logger.WithContext(ctx).Info("[ScanCoordinator] disabled, cleared %d suppressed units", len(cleared))
		return
	}
	c.Scan(ctx)
}

// Reveal clears the suppression of a single flagged unit.
func (c *Coordinator) Reveal(ctx context.Context, id domain.UnitID) (bool, error) {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	if !c.registry.MarkCleared(id) {
		return false, nil
	}
	if err := c.renderer.ClearSuppression(ctx, id); err != nil {
		return true, err
	}
	return true, nil
}

// Settings returns the current settings snapshot.
func (c *Coordinator) Settings() domain.Settings {
	return c.settings.Load().Clone()
}

// ClearCache drops cached classification results.
func (c *Coordinator) ClearCache(ctx context.Context) error {
	return c.classify.ClearCache(ctx)
}

// Forget drops the markers of units evicted from the source.
func (c *Coordinator) Forget(ids ...domain.UnitID) {
	c.registry.Forget(ids...)
}

// Reset forgets every processing marker so all units are eligible again.
func (c *Coordinator) Reset() {
	c.registry.Reset()
}

// UnitState returns the processing state of a unit.
func (c *Coordinator) UnitState(id domain.UnitID) (domain.ProcessingState, bool) {
	return c.registry.State(id)
}

// Unit returns the registry entry for a unit.
func (c *Coordinator) Unit(id domain.UnitID) (UnitEntry, bool) {
	return c.registry.Entry(id)
}

// Wait blocks until every started classification has completed.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

// Stats is a snapshot of coordinator counters.
type Stats struct {
	Scans      int64          `json:"scans"`
	Started    int64          `json:"started"`
	Suppressed int64          `json:"suppressed"`
	Registry   RegistryCounts `json:"registry"`
}

// Stats returns current counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Scans:      c.scans.Load(),
		Started:    c.started.Load(),
		Suppressed: c.suppressed.Load(),
		Registry:   c.registry.Snapshot(),
	}
}

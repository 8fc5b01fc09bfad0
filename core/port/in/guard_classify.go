package in

import (
	"context"

	"guard_server/core/domain"
)

// ClassifyOptions tunes one classification call.
type ClassifyOptions struct {
	MaxLabels int
	UseRemote bool
	APIToken  string
}

// ClassifyService is the dispatcher contract. Classify never fails; strategy
// errors degrade to a heuristic or empty result.
type ClassifyService interface {
	Classify(ctx context.Context, text string, opts ClassifyOptions) domain.ClassificationResult
	ClearCache(ctx context.Context) error
}

// ScanService drives discovery and decisions.
type ScanService interface {
	Scan(ctx context.Context) int
	Notify()
	ApplySettings(ctx context.Context, settings domain.Settings)
	Settings() domain.Settings
	ClearCache(ctx context.Context) error
	Reset()
	UnitState(id domain.UnitID) (domain.ProcessingState, bool)
}

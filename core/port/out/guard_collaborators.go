package out

import (
	"context"

	"guard_server/core/domain"
)

// Renderer applies visual decisions. Each method is called at most once per
// terminal transition of a unit.
type Renderer interface {
	Suppress(ctx context.Context, unitID domain.UnitID, category domain.Category, score float64) error
	ClearSuppression(ctx context.Context, unitID domain.UnitID) error
}

// UnitSource yields the units discovered so far. It may return units that
// were already processed; the scan loop deduplicates.
type UnitSource interface {
	Pending(ctx context.Context) ([]domain.TextUnit, error)
}

// SettingsStore persists the settings snapshot.
type SettingsStore interface {
	Get(ctx context.Context) (domain.Settings, error)
	Save(ctx context.Context, settings domain.Settings) error
}

// DecisionRecorder writes audit entries for decisions.
type DecisionRecorder interface {
	Record(ctx context.Context, record domain.DecisionRecord) error
}

// EventPublisher fans decisions out to other services.
type EventPublisher interface {
	PublishDecision(ctx context.Context, record domain.DecisionRecord) error
}

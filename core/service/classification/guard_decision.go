package classification

import (
	"guard_server/core/domain"
)

// DecisionEngine maps labels and settings to an action.
type DecisionEngine struct{}

// NewDecisionEngine creates a decision engine.
func NewDecisionEngine() *DecisionEngine {
	return &DecisionEngine{}
}

// Decide returns Suppress for the highest-scoring label whose category is
// enabled and whose score reaches the threshold, or None. Only the first
// qualifying label counts.
func (e *DecisionEngine) Decide(labels []domain.Label, settings domain.Settings) domain.Action {
	if len(labels) == 0 {
		return domain.NoAction()
	}

	ordered := make([]domain.Label, len(labels))
	copy(ordered, labels)
	domain.SortLabels(ordered)

	for _, l := range ordered {
		if !settings.IsCategoryEnabled(l.Category) {
			continue
		}
		if l.Score >= settings.Threshold {
			return domain.Suppress(l.Category, l.Score)
		}
		// sorted descending: nothing later can reach the threshold
		break
	}
	return domain.NoAction()
}

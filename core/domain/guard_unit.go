package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnitID identifies one discovered text unit.
type UnitID string

// NewUnitID generates a random unit id.
func NewUnitID() UnitID {
	return UnitID(uuid.NewString())
}

// ProcessingState is the lifecycle of a text unit.
type ProcessingState int

const (
	StateUnprocessed ProcessingState = iota
	StateProcessing
	StateClassified
	StateFlagged
	StateCleared
)

func (s ProcessingState) String() string {
	switch s {
	case StateUnprocessed:
		return "unprocessed"
	case StateProcessing:
		return "processing"
	case StateClassified:
		return "classified"
	case StateFlagged:
		return "flagged"
	case StateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ProcessingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition will happen on its own.
func (s ProcessingState) Terminal() bool {
	return s == StateFlagged || s == StateCleared
}

// TextUnit is one piece of candidate content.
type TextUnit struct {
	ID    UnitID          `json:"id"`
	Text  string          `json:"text"`
	State ProcessingState `json:"state"`
}

// ActionKind is the outcome of a decision.
type ActionKind string

const (
	ActionNone     ActionKind = "none"
	ActionSuppress ActionKind = "suppress"
)

// Action is what the renderer should do with a unit.
type Action struct {
	Kind     ActionKind `json:"kind"`
	Category Category   `json:"category,omitempty"`
	Score    float64    `json:"score,omitempty"`
}

// NoAction is the None decision.
func NoAction() Action {
	return Action{Kind: ActionNone}
}

// Suppress builds a suppress decision.
func Suppress(category Category, score float64) Action {
	return Action{Kind: ActionSuppress, Category: category, Score: score}
}

// IsSuppress reports whether the action hides content.
func (a Action) IsSuppress() bool {
	return a.Kind == ActionSuppress
}

// DecisionRecord is the audit entry written for each terminal transition.
type DecisionRecord struct {
	ID         uuid.UUID  `json:"id"`
	UnitID     UnitID     `json:"unit_id"`
	Action     Action     `json:"action"`
	Labels     []Label    `json:"labels"`
	Provenance Provenance `json:"provenance"`
	Threshold  float64    `json:"threshold"`
	DecidedAt  time.Time  `json:"decided_at"`
}

// NewDecisionRecord stamps a record with a fresh id and the current time.
func NewDecisionRecord(unitID UnitID, action Action, result ClassificationResult, threshold float64) DecisionRecord {
	return DecisionRecord{
		ID:         uuid.New(),
		UnitID:     unitID,
		Action:     action,
		Labels:     result.Clone().Labels,
		Provenance: result.Provenance,
		Threshold:  threshold,
		DecidedAt:  time.Now().UTC(),
	}
}

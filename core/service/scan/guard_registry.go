package scan

import (
	"sync"

	"guard_server/core/domain"
)

// =============================================================================
// Processing Registry
// =============================================================================

// UnitEntry is the registry's view of one unit.
type UnitEntry struct {
	ID      domain.UnitID          `json:"id"`
	State   domain.ProcessingState `json:"state"`
	Action  domain.Action          `json:"action"`
	Cleared bool                   `json:"visually_cleared"`

	forgotten bool // evicted while processing; dropped on Complete
}

// ProcessingRegistry remembers which units have been picked up so each is
// classified at most once until Reset.
type ProcessingRegistry struct {
	mu      sync.Mutex
	entries map[domain.UnitID]*UnitEntry
}

// NewProcessingRegistry creates an empty registry.
func NewProcessingRegistry() *ProcessingRegistry {
	return &ProcessingRegistry{entries: make(map[domain.UnitID]*UnitEntry)}
}

// TryBegin marks id as Processing. It returns false if the unit was already
// seen in any state.
func (r *ProcessingRegistry) TryBegin(id domain.UnitID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = &UnitEntry{ID: id, State: domain.StateProcessing, Action: domain.NoAction()}
	return true
}

// Complete records the terminal state of a unit begun with TryBegin. It
// reports false when the unit was forgotten by Reset while in flight.
func (r *ProcessingRegistry) Complete(id domain.UnitID, state domain.ProcessingState, action domain.Action) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.State != domain.StateProcessing {
		return false
	}
	e.State = state
	e.Action = action
	if e.forgotten {
		delete(r.entries, id)
	}
	return true
}

// Forget drops the entries of units that left the source. A unit still in
// flight is dropped when it completes, so its decision is still delivered.
func (r *ProcessingRegistry) Forget(ids ...domain.UnitID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		e, ok := r.entries[id]
		if !ok {
			continue
		}
		if e.State == domain.StateProcessing {
			e.forgotten = true
			continue
		}
		delete(r.entries, id)
	}
}

// MarkCleared flags a suppressed unit as visually cleared. It reports
// whether the unit was flagged and still visible.
func (r *ProcessingRegistry) MarkCleared(id domain.UnitID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.State != domain.StateFlagged || e.Cleared {
		return false
	}
	e.Cleared = true
	return true
}

// State returns the state of id. Unknown units are Unprocessed.
func (r *ProcessingRegistry) State(id domain.UnitID) (domain.ProcessingState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.StateUnprocessed, false
	}
	return e.State, true
}

// Entry returns a copy of the entry for id.
func (r *ProcessingRegistry) Entry(id domain.UnitID) (UnitEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return UnitEntry{ID: id, State: domain.StateUnprocessed, Action: domain.NoAction()}, false
	}
	return *e, true
}

// TakeFlagged returns flagged units that are still visibly suppressed and
// marks them cleared, so a second call returns nothing for the same units.
func (r *ProcessingRegistry) TakeFlagged() []domain.UnitID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []domain.UnitID
	for id, e := range r.entries {
		if e.State == domain.StateFlagged && !e.Cleared {
			e.Cleared = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Flagged returns the ids currently in the Flagged state.
func (r *ProcessingRegistry) Flagged() []domain.UnitID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []domain.UnitID
	for id, e := range r.entries {
		if e.State == domain.StateFlagged {
			ids = append(ids, id)
		}
	}
	return ids
}

// RegistryCounts summarizes the registry.
type RegistryCounts struct {
	Total      int `json:"total"`
	Processing int `json:"processing"`
	Flagged    int `json:"flagged"`
	Cleared    int `json:"cleared"`
}

// Snapshot counts entries per state.
func (r *ProcessingRegistry) Snapshot() RegistryCounts {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := RegistryCounts{Total: len(r.entries)}
	for _, e := range r.entries {
		switch e.State {
		case domain.StateProcessing:
			c.Processing++
		case domain.StateFlagged:
			c.Flagged++
		case domain.StateCleared:
			c.Cleared++
		}
	}
	return c
}

// Reset forgets every unit.
func (r *ProcessingRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[domain.UnitID]*UnitEntry)
}

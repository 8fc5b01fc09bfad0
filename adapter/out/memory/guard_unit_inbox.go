// Package memory holds in-process adapters used when no external store is
// configured, and as the unit inbox fed by HTTP and the stream consumer.
package memory

import (
	"context"
	"strings"
	"sync"

	"guard_server/core/domain"
	"guard_server/core/port/out"
)

// UnitInbox collects discovered units for the scan loop. Adding an id that
// is already present replaces its text.
type UnitInbox struct {
	mu      sync.RWMutex
	order   []domain.UnitID
	units   map[domain.UnitID]domain.TextUnit
	limit   int
	onEvict func(ids ...domain.UnitID)
}

var _ out.UnitSource = (*UnitInbox)(nil)

// NewUnitInbox creates an inbox holding at most limit units; the oldest are
// evicted first. limit <= 0 means unbounded.
func NewUnitInbox(limit int) *UnitInbox {
	return &UnitInbox{
		units: make(map[domain.UnitID]domain.TextUnit),
		limit: limit,
	}
}

// OnEvict registers fn to receive the ids dropped by the size limit. fn is
// called outside the inbox lock.
func (b *UnitInbox) OnEvict(fn func(ids ...domain.UnitID)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEvict = fn
}

// Add stores units, assigning ids where missing, and returns the stored ids.
func (b *UnitInbox) Add(units ...domain.TextUnit) []domain.UnitID {
	ids, evicted, onEvict := b.add(units)
	if len(evicted) > 0 && onEvict != nil {
		onEvict(evicted...)
	}
	return ids
}

func (b *UnitInbox) add(units []domain.TextUnit) ([]domain.UnitID, []domain.UnitID, func(ids ...domain.UnitID)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]domain.UnitID, 0, len(units))
	for _, u := range units {
		u.ID = domain.UnitID(strings.TrimSpace(string(u.ID)))
		if u.ID == "" {
			u.ID = domain.NewUnitID()
		}
		u.State = domain.StateUnprocessed
		if _, exists := b.units[u.ID]; !exists {
			b.order = append(b.order, u.ID)
		}
		b.units[u.ID] = u
		ids = append(ids, u.ID)
	}

	var evicted []domain.UnitID
	for b.limit > 0 && len(b.order) > b.limit {
		evicted = append(evicted, b.order[0])
		delete(b.units, b.order[0])
		b.order = b.order[1:]
	}
	return ids, evicted, b.onEvict
}

// Get returns a unit by id.
func (b *UnitInbox) Get(id domain.UnitID) (domain.TextUnit, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.units[id]
	return u, ok
}

// Pending returns every unit in insertion order.
func (b *UnitInbox) Pending(context.Context) ([]domain.TextUnit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.TextUnit, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.units[id])
	}
	return out, nil
}

// Len returns the number of units held.
func (b *UnitInbox) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

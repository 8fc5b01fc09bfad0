package memory

import (
	"context"
	"sync"

	"guard_server/core/domain"
	"guard_server/core/port/out"
)

// SettingsStore keeps settings in process memory.
type SettingsStore struct {
	mu       sync.RWMutex
	settings domain.Settings
}

var _ out.SettingsStore = (*SettingsStore)(nil)

// NewSettingsStore creates a store seeded with initial.
func NewSettingsStore(initial domain.Settings) *SettingsStore {
	return &SettingsStore{settings: initial.Clone()}
}

func (s *SettingsStore) Get(context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone(), nil
}

func (s *SettingsStore) Save(_ context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings.Clone()
	return nil
}

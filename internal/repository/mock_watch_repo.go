package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/notifyhub/changewatch/internal/domain"
)

// MockWatchRepository is a hand-written, in-memory implementation of
// WatchRepository used in unit tests. No mock-generation library needed.
type MockWatchRepository struct {
	mu      sync.RWMutex
	watches map[string]domain.Watch
	saves   int

	// Optional error overrides, set in tests to simulate failure paths.
	SaveErr   error
	DeleteErr error
	ListErr   error
}

func NewMockWatchRepository(seed ...domain.Watch) *MockWatchRepository {
	m := &MockWatchRepository{watches: make(map[string]domain.Watch)}
	for _, w := range seed {
		m.watches[w.ID] = w.Clone()
	}
	return m
}

func (m *MockWatchRepository) Save(_ context.Context, w domain.Watch) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches[w.ID] = w.Clone()
	m.saves++
	return nil
}

func (m *MockWatchRepository) Delete(_ context.Context, id string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watches, id)
	return nil
}

func (m *MockWatchRepository) List(_ context.Context) ([]domain.Watch, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Watch, 0, len(m.watches))
	for _, w := range m.watches {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns the stored watch, for assertions.
func (m *MockWatchRepository) Get(id string) (domain.Watch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.watches[id]
	return w, ok
}

// Saves returns how many successful Save calls were made.
func (m *MockWatchRepository) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

var _ WatchRepository = (*MockWatchRepository)(nil)

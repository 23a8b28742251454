package cache

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// Memory is an in-process Store. Entries are lost on exit.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]models.CacheEntry)}
}

func (m *Memory) Get(_ context.Context, key string) (*models.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	e.Payload = slices.Clone(e.Payload)
	return &e, nil
}

func (m *Memory) Put(_ context.Context, entry models.CacheEntry) error {
	entry.Payload = slices.Clone(entry.Payload)

	m.mu.Lock()
	m.entries[entry.Key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix string, limit int) ([]models.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.CacheEntry, 0)
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b models.CacheEntry) int {
		return strings.Compare(a.Key, b.Key)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }

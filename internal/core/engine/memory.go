package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/jordancj7/folio/internal/core"
)

// MemoryWindowStore keeps rate windows in process memory.
//
// Each key has its own mutex, so updates for different callers never block one
// another.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	mu     sync.Mutex
	window core.RateWindow
}

// NewMemoryWindowStore returns an empty store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{entries: make(map[string]*memoryEntry)}
}

func (m *MemoryWindowStore) entry(key string, create bool) *memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]*memoryEntry)
	}
	e, ok := m.entries[key]
	if !ok && create {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	return e
}

// GetRateWindow returns a copy of the window for key, or nil if none exists.
func (m *MemoryWindowStore) GetRateWindow(_ context.Context, key string) (*core.RateWindow, error) {
	e := m.entry(key, false)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	window := e.window.Clone()
	return &window, nil
}

// UpdateRateWindow runs fn under the key's lock and stores the result.
func (m *MemoryWindowStore) UpdateRateWindow(ctx context.Context, key string, fn func(*core.RateWindow) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := m.entry(key, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.window.Clone()
	if err := fn(&working); err != nil {
		return err
	}
	e.window = working
	return nil
}

// DeleteRateWindow forgets key.
func (m *MemoryWindowStore) DeleteRateWindow(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Keys lists the callers currently tracked, sorted.
func (m *MemoryWindowStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

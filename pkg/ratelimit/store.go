package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry is the window state of one client.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Store holds window entries. Implementations may be process-local or
// shared between instances; the limiter only needs Get and Set.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores e for key; the store may forget it after ttl.
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
}

// MemoryStore is a mutex guarded map. Expired entries are dropped on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !stored.expiresAt.IsZero() && m.now().After(stored.expiresAt) {
		delete(m.entries, key)
		return Entry{}, false, nil
	}
	return stored.entry, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, e Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := memoryEntry{entry: e}
	if ttl > 0 {
		stored.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = stored
	return nil
}

// Len returns the number of tracked clients, including not yet collected expired ones.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

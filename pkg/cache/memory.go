package cache

import (
	"context"
	"sync"
	"time"
)

// Backend stores opaque values with a time-to-live
type Backend interface {
	// Get returns the value and true when the key is present and not expired
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value until ttl elapses
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key
	Delete(ctx context.Context, key string) error

	// Clear removes every key owned by the backend
	Clear(ctx context.Context) error
}

type entry struct {
	value  []byte
	expiry time.Time
}

// Memory is an in-process Backend. It has no size bound; Run sweeps expired
// entries so a long-running process does not hold them forever.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty Memory backend
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// WithClock replaces the time source, used by tests
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Get returns the stored value while now <= expiry and evicts it afterwards
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expiry) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{value: value, expiry: m.now().Add(ttl)}
	return nil
}

// Has reports whether a key is present, ignoring expiry
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[key]
	return ok
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]entry)
	return nil
}

// Len returns the number of stored entries, expired or not
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep evicts every expired entry and returns how many were removed
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if now.After(e.expiry) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps on every interval until ctx is done
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

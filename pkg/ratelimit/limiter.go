package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a single Allow call
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	start time.Time
	count int
}

// FixedWindow counts requests per key in fixed windows that start at the
// key's first request. Requests straddling a window boundary can reach twice
// the limit in a short span; that is how a fixed window behaves.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*window
	size    time.Duration
	max     int
	now     func() time.Time
}

// NewFixedWindow allows max requests per key within each window of size
func NewFixedWindow(size time.Duration, max int) *FixedWindow {
	return &FixedWindow{
		windows: make(map[string]*window),
		size:    size,
		max:     max,
		now:     time.Now,
	}
}

// WithClock replaces the time source, used by tests
func (f *FixedWindow) WithClock(now func() time.Time) *FixedWindow {
	f.now = now
	return f
}

func (f *FixedWindow) Allow(_ context.Context, key string) (Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	w, ok := f.windows[key]
	if !ok || now.Sub(w.start) > f.size {
		f.windows[key] = &window{start: now, count: 1}
		return Decision{Allowed: true, Limit: f.max, Remaining: f.max - 1}, nil
	}

	w.count++
	if w.count > f.max {
		// at the boundary instant the window is still open, the reset is one tick away
		retry := w.start.Add(f.size).Sub(now)
		if retry <= 0 {
			retry = time.Nanosecond
		}
		return Decision{
			Allowed:    false,
			Limit:      f.max,
			RetryAfter: retry,
		}, nil
	}
	return Decision{Allowed: true, Limit: f.max, Remaining: f.max - w.count}, nil
}

// Len returns the number of tracked keys
func (f *FixedWindow) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

// Sweep forgets keys whose window has elapsed
func (f *FixedWindow) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	removed := 0
	for key, w := range f.windows {
		if now.Sub(w.start) > f.size {
			delete(f.windows, key)
			removed++
		}
	}
	return removed
}

// Run sweeps on every interval until ctx is done
func (f *FixedWindow) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

package snapshot

import (
	"sync"
	"time"

	"standings/pkg/consumer"
)

// Pending is a group waiting for its snapshot to be rebuilt, with the message
// that announced it
type Pending struct {
	GroupID string
	Message consumer.Message
	Seq     uint64
}

// Buffer collects pending groups until a size or time limit is reached
type Buffer struct {
	mu        sync.Mutex
	items     []Pending
	capacity  int
	lastFlush time.Time
	now       func() time.Time
}

// NewBuffer creates a new Buffer instance
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		items:     make([]Pending, 0, capacity),
		capacity:  capacity,
		lastFlush: time.Now(),
		now:       time.Now,
	}
}

// Add appends an item and reports whether the buffer is full
func (b *Buffer) Add(p Pending) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, p)
	return len(b.items) >= b.capacity
}

// Flush returns the buffered items and clears the buffer
func (b *Buffer) Flush() []Pending {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.items
	b.items = make([]Pending, 0, b.capacity)
	b.lastFlush = b.now()
	return batch
}

// Requeue puts a batch that could not be flushed back in front of the
// items added since
func (b *Buffer) Requeue(batch []Pending) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(append(make([]Pending, 0, len(batch)+len(b.items)), batch...), b.items...)
}

// Size returns the current number of buffered items
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// ShouldFlush reports whether items have waited at least interval since the last flush
func (b *Buffer) ShouldFlush(interval time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return false
	}
	return b.now().Sub(b.lastFlush) >= interval
}

// Groups returns the distinct group ids of a batch in first-seen order
func Groups(batch []Pending) []string {
	seen := make(map[string]bool, len(batch))
	groups := make([]string, 0, len(batch))
	for _, p := range batch {
		if p.GroupID == "" || seen[p.GroupID] {
			continue
		}
		seen[p.GroupID] = true
		groups = append(groups, p.GroupID)
	}
	return groups
}

// Package eventlog keeps the most recent log lines in memory for the /logs endpoint.
package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept when no capacity is given.
const DefaultCapacity = 100

// Entry is a single recorded log line.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
}

// Ring is a fixed-capacity FIFO of log entries. When full, the oldest entry
// is overwritten. Safe for concurrent use: log lines arrive from HTTP and
// MQTT callback goroutines as well as the control loop.
type Ring struct {
	mu       sync.Mutex
	buf      []Entry
	capacity int
	head     int // next write position
	count    int
	dropped  uint64
}

// New creates a Ring holding up to capacity entries.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ring{
		buf:      make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, evicting the oldest when the ring is full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = e
	r.head = (r.head + 1) % r.capacity
	if r.count == r.capacity {
		r.dropped++
		return
	}
	r.count++
}

// Entries returns a copy of the stored entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Entry, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}
	return result
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped returns how many entries have been evicted since creation.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Clear removes all entries.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}

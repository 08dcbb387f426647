// Package logbuf provides the bounded, ordered diagnostics trace shown to operators.
package logbuf

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept when no capacity is configured.
const DefaultCapacity = 50

// Level classifies an entry for display.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Entry is one immutable log line.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     Level     `json:"level"`
}

// Ring is a thread-safe FIFO that keeps the most recent entries up to its capacity.
// When full, the oldest entries are dropped to admit new ones.
type Ring struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// NewRing creates a Ring. A non-positive capacity falls back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Append adds e at the tail, evicting from the head as needed.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, e)
		return
	}

	// Shift in place so the backing array never grows past capacity.
	copy(r.entries, r.entries[1:])
	r.entries[len(r.entries)-1] = e
}

// Entries returns a copy of the buffered entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear removes all entries.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}

// Len returns the number of buffered entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cap returns the configured capacity.
func (r *Ring) Cap() int {
	return r.capacity
}

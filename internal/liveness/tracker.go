// Package liveness tracks outstanding pings and matches them with pongs.
//
// A ping is keyed by its send timestamp in epoch milliseconds. It leaves the pending
// set exactly once: either acknowledged by a pong carrying the same timestamp or
// expired by its timeout. Timeouts are never cancelled; Expire re-checks membership,
// so a timer that fires after the pong (or after Reset) is a no-op.
package liveness

import (
	"sync"
	"time"
)

// DefaultTimeout is how long a ping may stay unanswered.
const DefaultTimeout = 10 * time.Second

type pendingPing struct {
	robotID string
	seq     uint64
}

// Ticket identifies one issued ping. Seq disambiguates a timestamp reused after Reset.
type Ticket struct {
	RobotID   string
	Timestamp int64
	Seq       uint64
}

// Tracker holds the pending-ping set.
type Tracker struct {
	mu      sync.Mutex
	pending map[int64]pendingPing
	seq     uint64
	timeout time.Duration
}

// NewTracker creates a Tracker. A non-positive timeout falls back to DefaultTimeout.
func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		pending: make(map[int64]pendingPing),
		timeout: timeout,
	}
}

// Timeout returns the configured ping timeout.
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// Begin records a new ping for robotID sent at now. If the millisecond is already taken
// by another outstanding ping the timestamp is bumped until it is unique.
func (t *Tracker) Begin(robotID string, now time.Time) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := now.UnixMilli()
	for {
		if _, taken := t.pending[ts]; !taken {
			break
		}
		ts++
	}
	t.seq++
	t.pending[ts] = pendingPing{robotID: robotID, seq: t.seq}
	return Ticket{RobotID: robotID, Timestamp: ts, Seq: t.seq}
}

// Acknowledge matches a pong timestamp. When matched the entry is removed and the
// round-trip time (now - ts) is returned.
func (t *Tracker) Acknowledge(ts int64, now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[ts]; !ok {
		return 0, false
	}
	delete(t.pending, ts)
	rtt := time.Duration(now.UnixMilli()-ts) * time.Millisecond
	if rtt < 0 {
		rtt = 0
	}
	return rtt, true
}

// Expire removes the ticket's entry if it is still the one that was issued and reports
// whether it did. Callers demote the robot only when Expire returns true.
func (t *Tracker) Expire(ticket Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[ticket.Timestamp]
	if !ok || p.seq != ticket.Seq {
		return false
	}
	delete(t.pending, ticket.Timestamp)
	return true
}

// Cancel drops a ticket whose ping could not be sent.
func (t *Tracker) Cancel(ticket Ticket) {
	t.Expire(ticket)
}

// Reset drops every pending ping and returns how many were dropped.
func (t *Tracker) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.pending)
	t.pending = make(map[int64]pendingPing)
	return n
}

// Pending returns the number of outstanding pings.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

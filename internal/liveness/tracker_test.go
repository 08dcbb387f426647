package liveness

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNewTrackerDefaults(t *testing.T) {
	if got := NewTracker(0).Timeout(); got != DefaultTimeout {
		t.Fatalf("Timeout() = %v; want %v", got, DefaultTimeout)
	}
	if got := NewTracker(3 * time.Second).Timeout(); got != 3*time.Second {
		t.Fatalf("Timeout() = %v; want 3s", got)
	}
}

func TestAcknowledgeComputesRTT(t *testing.T) {
	tr := NewTracker(0)
	sent := time.UnixMilli(1000)

	ticket := tr.Begin("r1", sent)
	if ticket.Timestamp != 1000 || ticket.RobotID != "r1" {
		t.Fatalf("Begin() = %+v; want timestamp 1000 for r1", ticket)
	}

	rtt, ok := tr.Acknowledge(1000, time.UnixMilli(1050))
	if !ok {
		t.Fatalf("Acknowledge() ok = false; want true")
	}
	if rtt != 50*time.Millisecond {
		t.Fatalf("Acknowledge() rtt = %v; want 50ms", rtt)
	}
	if tr.Pending() != 0 {
		t.Fatalf("Pending() = %d; want 0", tr.Pending())
	}
}

func TestAcknowledgeUnknownTimestamp(t *testing.T) {
	tr := NewTracker(0)
	tr.Begin("r1", time.UnixMilli(1000))

	if _, ok := tr.Acknowledge(999, time.UnixMilli(1050)); ok {
		t.Fatalf("Acknowledge(999) ok = true; want false")
	}
	if tr.Pending() != 1 {
		t.Fatalf("Pending() = %d; want 1", tr.Pending())
	}
}

func TestExpireAfterAcknowledgeIsNoop(t *testing.T) {
	tr := NewTracker(0)
	ticket := tr.Begin("r1", time.UnixMilli(1000))
	tr.Acknowledge(ticket.Timestamp, time.UnixMilli(1010))

	if tr.Expire(ticket) {
		t.Fatalf("Expire() after pong = true; want false")
	}
}

func TestExpireRemovesEntryOnce(t *testing.T) {
	tr := NewTracker(0)
	ticket := tr.Begin("r1", time.UnixMilli(1000))

	if !tr.Expire(ticket) {
		t.Fatalf("Expire() = false; want true")
	}
	if tr.Expire(ticket) {
		t.Fatalf("second Expire() = true; want false")
	}
	if _, ok := tr.Acknowledge(ticket.Timestamp, time.UnixMilli(2000)); ok {
		t.Fatalf("Acknowledge() after timeout = true; want false")
	}
}

func TestBeginKeepsTimestampsUnique(t *testing.T) {
	tr := NewTracker(0)
	now := time.UnixMilli(5000)

	a := tr.Begin("r1", now)
	b := tr.Begin("r1", now)
	c := tr.Begin("r1", now)

	if a.Timestamp == b.Timestamp || b.Timestamp == c.Timestamp || a.Timestamp == c.Timestamp {
		t.Fatalf("timestamps not unique: %d %d %d", a.Timestamp, b.Timestamp, c.Timestamp)
	}
	if tr.Pending() != 3 {
		t.Fatalf("Pending() = %d; want 3", tr.Pending())
	}
}

func TestStaleTicketDoesNotExpireReusedTimestamp(t *testing.T) {
	tr := NewTracker(0)
	old := tr.Begin("r1", time.UnixMilli(7000))
	tr.Reset()
	fresh := tr.Begin("r1", time.UnixMilli(7000))

	if old.Timestamp != fresh.Timestamp {
		t.Fatalf("expected reused timestamp, got %d and %d", old.Timestamp, fresh.Timestamp)
	}
	if tr.Expire(old) {
		t.Fatalf("stale Expire() = true; want false")
	}
	if tr.Pending() != 1 {
		t.Fatalf("Pending() = %d; want 1", tr.Pending())
	}
}

func TestResetDropsAll(t *testing.T) {
	tr := NewTracker(0)
	t1 := tr.Begin("r1", time.UnixMilli(1))
	t2 := tr.Begin("r1", time.UnixMilli(2))

	if n := tr.Reset(); n != 2 {
		t.Fatalf("Reset() = %d; want 2", n)
	}
	if tr.Expire(t1) || tr.Expire(t2) {
		t.Fatalf("Expire() after Reset = true; want false")
	}
}

// Every ping ends in exactly one of acknowledged or expired.
func TestExactlyOneOutcomeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("each ping is acknowledged xor expired", prop.ForAll(
		func(answered []bool, expireFirst bool) bool {
			tr := NewTracker(0)
			tickets := make([]Ticket, len(answered))
			for i := range answered {
				tickets[i] = tr.Begin("r1", time.UnixMilli(int64(1000+i/2)))
			}

			for i, ticket := range tickets {
				acked, expired := false, false
				if expireFirst {
					expired = tr.Expire(ticket)
					if answered[i] {
						_, acked = tr.Acknowledge(ticket.Timestamp, time.UnixMilli(20000))
					}
				} else {
					if answered[i] {
						_, acked = tr.Acknowledge(ticket.Timestamp, time.UnixMilli(1500))
					}
					expired = tr.Expire(ticket)
				}
				if acked == expired {
					return false
				}
			}
			return tr.Pending() == 0
		},
		gen.SliceOf(gen.Bool()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

package logbuf

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func entry(i int) Entry {
	return Entry{ID: strconv.Itoa(i), Message: "m" + strconv.Itoa(i), Level: LevelInfo}
}

func TestNewRing(t *testing.T) {
	if got := NewRing(10).Cap(); got != 10 {
		t.Errorf("expected capacity 10, got %d", got)
	}
	if got := NewRing(0).Cap(); got != DefaultCapacity {
		t.Errorf("expected default capacity for zero input, got %d", got)
	}
	if got := NewRing(-3).Cap(); got != DefaultCapacity {
		t.Errorf("expected default capacity for negative input, got %d", got)
	}
	if got := NewRing(5).Len(); got != 0 {
		t.Errorf("expected empty ring, got %d entries", got)
	}
}

func TestRing_AppendWithinCapacity(t *testing.T) {
	r := NewRing(3)
	r.Append(entry(1))
	r.Append(entry(2))

	got := r.Entries()
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("Entries() = %+v; want [1 2]", got)
	}
}

func TestRing_EvictsOldestFirst(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Append(entry(i))
	}

	got := r.Entries()
	if len(got) != 3 {
		t.Fatalf("Len() = %d; want 3", len(got))
	}
	for i, want := range []string{"3", "4", "5"} {
		if got[i].ID != want {
			t.Fatalf("Entries()[%d].ID = %q; want %q", i, got[i].ID, want)
		}
	}
}

func TestRing_EntriesReturnsCopy(t *testing.T) {
	r := NewRing(2)
	r.Append(entry(1))

	got := r.Entries()
	got[0].Message = "changed"

	if r.Entries()[0].Message != "m1" {
		t.Fatalf("Entries() should return a copy")
	}
}

func TestRing_Clear(t *testing.T) {
	r := NewRing(2)
	r.Append(entry(1))
	r.Append(entry(2))
	r.Clear()

	if r.Len() != 0 {
		t.Fatalf("Len() after Clear = %d; want 0", r.Len())
	}
	r.Append(entry(3))
	if got := r.Entries(); len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("Entries() after Clear+Append = %+v", got)
	}
}

func TestRingCapacityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("never exceeds capacity and keeps the newest entries in order", prop.ForAll(
		func(capacity, appends int) bool {
			r := NewRing(capacity)
			for i := 0; i < appends; i++ {
				r.Append(entry(i))
			}
			got := r.Entries()
			if len(got) > capacity {
				return false
			}
			want := appends
			if want > capacity {
				want = capacity
			}
			if len(got) != want {
				return false
			}
			first := appends - len(got)
			for i, e := range got {
				if e.ID != strconv.Itoa(first+i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 60),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

package convo

import (
	"testing"
	"time"
)

func TestTrackerTransitions(t *testing.T) {
	tr := NewTracker(time.Minute)

	if st, _ := tr.Get(1); st != Idle {
		t.Fatalf("new user state = %v, want Idle", st)
	}

	tr.Set(1, AwaitingText, "")
	if st, _ := tr.Get(1); st != AwaitingText {
		t.Fatalf("state = %v, want AwaitingText", st)
	}

	tr.Set(1, AwaitingConfirmation, "hello everyone")
	st, draft := tr.Get(1)
	if st != AwaitingConfirmation || draft != "hello everyone" {
		t.Fatalf("got (%v, %q), want (AwaitingConfirmation, draft)", st, draft)
	}

	tr.Clear(1)
	if st, _ := tr.Get(1); st != Idle {
		t.Fatalf("state after clear = %v, want Idle", st)
	}
}

func TestTrackerSetIdleDropsEntry(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.Set(5, AwaitingText, "draft")
	tr.Set(5, Idle, "")
	if st, draft := tr.Get(5); st != Idle || draft != "" {
		t.Fatalf("got (%v, %q), want (Idle, empty)", st, draft)
	}
}

func TestTrackerExpiry(t *testing.T) {
	tr := NewTracker(time.Minute)
	now := time.Now()
	tr.now = func() time.Time { return now }

	tr.Set(2, AwaitingConfirmation, "stale draft")

	now = now.Add(2 * time.Minute)
	if st, draft := tr.Get(2); st != Idle || draft != "" {
		t.Fatalf("expired entry read as (%v, %q), want Idle", st, draft)
	}
}

func TestTrackerSweep(t *testing.T) {
	tr := NewTracker(time.Minute)
	now := time.Now()
	tr.now = func() time.Time { return now }

	tr.Set(1, AwaitingText, "")
	tr.Set(2, AwaitingText, "")
	now = now.Add(90 * time.Second)
	tr.Set(3, AwaitingText, "")

	if n := tr.Sweep(); n != 2 {
		t.Fatalf("sweep removed %d, want 2", n)
	}
	if st, _ := tr.Get(3); st != AwaitingText {
		t.Fatalf("fresh entry swept; state = %v", st)
	}
}

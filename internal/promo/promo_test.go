package promo

import (
	"sync"
	"testing"
	"time"

	logx "promobot/pkg/logx"
)

func TestFormatText(t *testing.T) {
	got := FormatText("", DefaultCode)
	if got != "Thanks for joining! Here is your promo code: <b>SECRET15</b>" {
		t.Fatalf("default text = %q", got)
	}
	if got := FormatText("Use %s today", "ABC"); got != "Use ABC today" {
		t.Fatalf("templated text = %q", got)
	}
	if got := FormatText("Your code:", "ABC"); got != "Your code: ABC" {
		t.Fatalf("appended text = %q", got)
	}
}

func TestScheduleDeliversOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		seen  []int64
		fired = make(chan struct{}, 10)
	)
	s := NewScheduler(logx.Nop(), func(chatID int64) {
		mu.Lock()
		seen = append(seen, chatID)
		mu.Unlock()
		fired <- struct{}{}
	})
	s.SetDelay(10 * time.Millisecond)

	if !s.Schedule(42) {
		t.Fatalf("first Schedule returned false")
	}
	if s.Schedule(42) {
		t.Fatalf("duplicate Schedule returned true")
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("promo never delivered")
	}

	// give a hypothetical duplicate a chance to fire
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != 42 {
		t.Fatalf("deliveries = %v, want exactly one for chat 42", seen)
	}
	if s.PendingCount() != 0 {
		t.Fatalf("pending = %d after delivery, want 0", s.PendingCount())
	}
}

func TestCancelPreventsDelivery(t *testing.T) {
	delivered := make(chan int64, 1)
	s := NewScheduler(logx.Nop(), func(chatID int64) { delivered <- chatID })
	s.SetDelay(20 * time.Millisecond)

	s.Schedule(7)
	if !s.Cancel(7) {
		t.Fatalf("Cancel returned false for pending job")
	}
	if s.Cancel(7) {
		t.Fatalf("Cancel returned true for absent job")
	}

	select {
	case id := <-delivered:
		t.Fatalf("cancelled promo delivered to %d", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopCancelsEverything(t *testing.T) {
	delivered := make(chan int64, 10)
	s := NewScheduler(logx.Nop(), func(chatID int64) { delivered <- chatID })
	s.SetDelay(20 * time.Millisecond)

	s.Schedule(1)
	s.Schedule(2)
	s.Stop()

	if s.Schedule(3) {
		t.Fatalf("Schedule after Stop returned true")
	}
	select {
	case id := <-delivered:
		t.Fatalf("promo delivered to %d after Stop", id)
	case <-time.After(100 * time.Millisecond):
	}
}

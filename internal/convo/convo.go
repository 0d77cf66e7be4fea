// Package convo tracks per-operator conversation state for multi-step
// flows (currently only the broadcast flow).
package convo

import (
	"context"
	"sync"
	"time"
)

type State int

const (
	Idle State = iota
	AwaitingText
	AwaitingConfirmation
	Sending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingText:
		return "awaiting_text"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Sending:
		return "sending"
	default:
		return "unknown"
	}
}

type entry struct {
	state     State
	draft     string
	updatedAt time.Time
}

// Tracker holds conversation state keyed by user id. Entries that are not
// touched within the TTL are swept, so an abandoned flow silently resets to
// Idle instead of trapping the operator forever.
type Tracker struct {
	mu      sync.Mutex
	entries map[int64]entry
	ttl     time.Duration
	now     func() time.Time
}

const defaultTTL = 30 * time.Minute

func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Tracker{
		entries: map[int64]entry{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the current state and draft for a user. Expired entries read
// as Idle.
func (t *Tracker) Get(userID int64) (State, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	if !ok {
		return Idle, ""
	}
	if t.now().Sub(e.updatedAt) > t.ttl {
		delete(t.entries, userID)
		return Idle, ""
	}
	return e.state, e.draft
}

// Set transitions the user to the given state, keeping the draft.
func (t *Tracker) Set(userID int64, state State, draft string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state == Idle {
		delete(t.entries, userID)
		return
	}
	t.entries[userID] = entry{state: state, draft: draft, updatedAt: t.now()}
}

func (t *Tracker) Clear(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, userID)
}

// Sweep drops expired entries and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for id, e := range t.entries {
		if now.Sub(e.updatedAt) > t.ttl {
			delete(t.entries, id)
			n++
		}
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	interval := t.ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.Sweep()
		}
	}
}

// Package promo schedules the one-shot delayed promo message a subscriber
// receives shortly after their first /start.
package promo

import (
	"fmt"
	"strings"
	"sync"
	"time"

	logx "promobot/pkg/logx"
)

const (
	DefaultCode  = "SECRET15"
	DefaultDelay = 10 * time.Second

	// DefaultText receives the code via %s.
	DefaultText = "Thanks for joining! Here is your promo code: <b>%s</b>"
)

// FormatText renders the promo message. tmpl may contain a %s verb for the
// code; without one the code is appended.
func FormatText(tmpl, code string) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultText
	}
	if strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, code)
	}
	return tmpl + " " + code
}

// Scheduler runs at most one pending promo job per chat. Jobs are
// fire-and-forget: delivery errors are the deliver callback's problem.
type Scheduler struct {
	log     logx.Logger
	deliver func(chatID int64)

	mu      sync.Mutex
	pending map[int64]*time.Timer
	delay   time.Duration
	stopped bool
}

func NewScheduler(log logx.Logger, deliver func(chatID int64)) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		log:     log,
		deliver: deliver,
		pending: map[int64]*time.Timer{},
		delay:   DefaultDelay,
	}
}

// SetDelay changes the delay for jobs scheduled after the call.
func (s *Scheduler) SetDelay(d time.Duration) {
	if d <= 0 {
		d = DefaultDelay
	}
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Schedule queues a promo for the chat. A chat with a job already pending is
// left alone; returns false in that case.
func (s *Scheduler) Schedule(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, ok := s.pending[chatID]; ok {
		return false
	}
	s.pending[chatID] = time.AfterFunc(s.delay, func() { s.fire(chatID) })
	s.log.Debug("promo scheduled", logx.Int64("chat_id", chatID), logx.Duration("delay", s.delay))
	return true
}

func (s *Scheduler) fire(chatID int64) {
	s.mu.Lock()
	_, ok := s.pending[chatID]
	delete(s.pending, chatID)
	stopped := s.stopped
	s.mu.Unlock()
	// The timer may race with Cancel/Stop; only deliver if the job was
	// still pending.
	if !ok || stopped {
		return
	}
	s.deliver(chatID)
}

// Cancel drops a pending job. Returns true when one was pending.
func (s *Scheduler) Cancel(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[chatID]
	if !ok {
		return false
	}
	delete(s.pending, chatID)
	t.Stop()
	return true
}

func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels all pending jobs. Further Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}

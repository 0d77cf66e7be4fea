// Package broadcast implements the sequential message fan-out to all
// subscribers: one send at a time through a rate limiter, per-recipient
// error isolation, and sent/failed/blocked accounting.
package broadcast

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

const defaultRatePerSec = 25

// TextSender is the slice of the transport adapter the engine needs.
type TextSender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Service struct {
	sender TextSender
	log    logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
	running bool
}

func New(cfg Config, sender TextSender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps the rate limiter. A run already in flight keeps its snapshot
// of the old limiter until the next send.
func (s *Service) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRatePerSec
	}
	s.mu.Lock()
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	s.mu.Unlock()
}

// Running reports whether a fan-out is in flight.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Service) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

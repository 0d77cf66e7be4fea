// Package digest posts a periodic stats summary to the operational log chat.
package digest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"promobot/internal/storage"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
	"promobot/pkg/tgui"
)

const defaultSchedule = "0 9 * * *"

type Settings struct {
	Enabled  bool
	Schedule string // cron expression; empty means default
	ChatID   int64  // destination chat; 0 disables
}

type Service struct {
	log     logx.Logger
	adapter kit.Adapter
	store   storage.Store

	mu     sync.Mutex
	cron   *cron.Cron
	chatID int64
}

func New(adapter kit.Adapter, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, adapter: adapter, store: store}
}

// Apply reconfigures the schedule, replacing any previous one.
func (s *Service) Apply(cfg Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	s.chatID = cfg.ChatID
	if !cfg.Enabled || cfg.ChatID == 0 {
		return nil
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, s.post); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("digest scheduled", logx.String("schedule", schedule), logx.Int64("chat_id", cfg.ChatID))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Service) post() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	chatID := s.chatID
	s.mu.Unlock()
	if chatID == 0 {
		return
	}

	msg, err := s.compose(ctx)
	if err != nil {
		s.log.Warn("digest compose failed", logx.Err(err))
		return
	}
	if _, err := msg.Send(ctx, s.adapter, kit.ChatTarget{ChatID: chatID}); err != nil {
		s.log.Warn("digest delivery failed", logx.Err(err))
		return
	}
	s.log.Debug("digest posted", logx.Int64("chat_id", chatID))
}

func (s *Service) compose(ctx context.Context) (tgui.Message, error) {
	count, err := s.store.CountSubscribers(ctx)
	if err != nil {
		return tgui.Message{}, err
	}
	stats, err := s.store.ButtonStats(ctx)
	if err != nil {
		return tgui.Message{}, err
	}

	v := tgui.New().
		Title("📈", "Daily digest").
		KV("Subscribers", strconv.FormatInt(count, 10))
	if len(stats) > 0 {
		v.Blank().Line("Button presses:")
		for _, st := range stats {
			v.KV(st.Key, strconv.FormatInt(st.Count, 10))
		}
	}
	return v.Build(), nil
}

package digest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"promobot/internal/storage"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

type captureAdapter struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (c *captureAdapter) Stop(ctx context.Context) error                         { return nil }
func (c *captureAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(c.texts)}, nil
}
func (c *captureAdapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photo kit.Photo, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (c *captureAdapter) SendDocument(ctx context.Context, to kit.ChatTarget, doc kit.Document) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (c *captureAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}
func (c *captureAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

func newTestService(t *testing.T) (*Service, *captureAdapter, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ad := &captureAdapter{}
	s := New(ad, st, logx.Nop())
	t.Cleanup(s.Stop)
	return s, ad, st
}

func TestApplyRejectsBadSchedule(t *testing.T) {
	s, _, _ := newTestService(t)
	if err := s.Apply(Settings{Enabled: true, ChatID: 1, Schedule: "not a cron line"}); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestApplyDisabledIsNoop(t *testing.T) {
	s, _, _ := newTestService(t)
	if err := s.Apply(Settings{Enabled: false, ChatID: 1}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.cron != nil {
		t.Fatalf("cron running while disabled")
	}
}

func TestPostSendsSummary(t *testing.T) {
	s, ad, st := newTestService(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if _, err := st.UpsertSubscriber(ctx, storage.Subscriber{ID: id}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := st.IncrButton(ctx, "catalog"); err != nil {
		t.Fatalf("incr: %v", err)
	}

	if err := s.Apply(Settings{Enabled: true, ChatID: 555, Schedule: "0 9 * * *"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	s.post()

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.texts) != 1 {
		t.Fatalf("digests sent = %d, want 1", len(ad.texts))
	}
	if !strings.Contains(ad.texts[0], "3") || !strings.Contains(ad.texts[0], "catalog") {
		t.Fatalf("digest text missing data: %q", ad.texts[0])
	}
}

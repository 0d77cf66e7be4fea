package broadcast

import (
	"context"
	"errors"
	"strings"
	"testing"

	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

// fakeSender scripts per-chat outcomes and records every attempt.
type fakeSender struct {
	attempts []int64
	failWith map[int64]error
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.attempts = append(f.attempts, to.ChatID)
	if err, ok := f.failWith[to.ChatID]; ok {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.attempts)}, nil
}

func targetsN(n int) []kit.ChatTarget {
	out := make([]kit.ChatTarget, n)
	for i := range out {
		out[i] = kit.ChatTarget{ChatID: int64(i + 1)}
	}
	return out
}

func newTestService(sender TextSender) *Service {
	return New(Config{RatePerSec: 10000}, sender, logx.Nop())
}

func TestValidateText(t *testing.T) {
	if err := ValidateText(""); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("empty: got %v, want ErrEmptyText", err)
	}
	if err := ValidateText(strings.Repeat("я", MaxTextRunes)); err != nil {
		t.Fatalf("at limit: got %v, want nil", err)
	}
	if err := ValidateText(strings.Repeat("я", MaxTextRunes+1)); !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("over limit: got %v, want ErrTextTooLong", err)
	}
}

func TestRunCountsAndNeverHalts(t *testing.T) {
	sender := &fakeSender{failWith: map[int64]error{
		3: errors.New("flood wait"),
		5: &kit.DeliveryError{Kind: kit.DeliveryBlocked, Err: errors.New("bot was blocked")},
		7: &kit.DeliveryError{Kind: kit.DeliveryChatNotFound, Err: errors.New("chat not found")},
	}}
	s := newTestService(sender)

	res, err := s.Run(context.Background(), targetsN(9), "hello", nil, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sender.attempts) != 9 {
		t.Fatalf("attempts = %d, want all 9 despite failures", len(sender.attempts))
	}
	if res.Sent != 6 || res.Failed != 2 || res.Blocked != 1 {
		t.Fatalf("result = %+v, want sent=6 failed=2 blocked=1", res)
	}
	if res.Sent+res.Failed+res.Blocked != res.Total {
		t.Fatalf("counters do not sum to total: %+v", res)
	}
}

func TestRunValidatesBeforeSending(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender)

	if _, err := s.Run(context.Background(), targetsN(3), "", nil, nil); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("got %v, want ErrEmptyText", err)
	}
	if len(sender.attempts) != 0 {
		t.Fatalf("sends attempted for invalid draft: %v", sender.attempts)
	}
}

func TestRunProgressEveryTenthSuccess(t *testing.T) {
	// chat 4 fails, so success #10 lands on the 11th target
	sender := &fakeSender{failWith: map[int64]error{4: errors.New("boom")}}
	s := newTestService(sender)

	var snaps []Progress
	res, err := s.Run(context.Background(), targetsN(25), "hi", nil, func(p Progress) {
		snaps = append(snaps, p)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Sent != 24 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(snaps) != 2 {
		t.Fatalf("progress fired %d times, want 2 (at 10 and 20 successes)", len(snaps))
	}
	if snaps[0].Sent != 10 || snaps[0].Failed != 1 || snaps[0].Done != 11 || snaps[0].Total != 25 {
		t.Fatalf("first snapshot = %+v", snaps[0])
	}
	if snaps[1].Sent != 20 || snaps[1].Done != 21 {
		t.Fatalf("second snapshot = %+v", snaps[1])
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender)

	var inner error
	ran := false
	_, err := s.Run(context.Background(), targetsN(10), "outer", nil, func(Progress) {
		if ran {
			return
		}
		ran = true
		_, inner = s.Run(context.Background(), targetsN(1), "inner", nil, nil)
	})
	if err != nil {
		t.Fatalf("outer run: %v", err)
	}
	if !ran {
		t.Fatalf("progress callback never fired")
	}
	if !errors.Is(inner, ErrBusy) {
		t.Fatalf("inner run: got %v, want ErrBusy", inner)
	}
	if s.Running() {
		t.Fatalf("service still marked running after completion")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Run(ctx, targetsN(30), "hi", nil, func(p Progress) {
		if p.Sent == 10 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(sender.attempts) >= 30 {
		t.Fatalf("run did not stop early: %d attempts", len(sender.attempts))
	}
}

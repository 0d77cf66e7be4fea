package broadcast

import (
	"context"
	"time"

	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

// progressEvery is how many successful sends pass between progress callbacks.
const progressEvery = 10

// ProgressFunc receives counter snapshots during a run. It is called from
// the run's goroutine; keep it quick.
type ProgressFunc func(p Progress)

// Run fans text out to targets strictly sequentially. A failed recipient
// never halts the run: the failure is counted (blocked chats separately)
// and the loop moves on. onProgress fires after every 10th successful send.
//
// Only one run may be in flight per Service; a second caller gets ErrBusy.
// Cancellation of ctx aborts mid-run and returns the partial Result along
// with the context error.
func (s *Service) Run(ctx context.Context, targets []kit.ChatTarget, text string, opt *kit.SendOptions, onProgress ProgressFunc) (Result, error) {
	if err := ValidateText(text); err != nil {
		return Result{}, err
	}
	if !s.acquire() {
		return Result{}, ErrBusy
	}
	defer s.release()

	start := time.Now()
	res := Result{Total: len(targets)}

	s.log.Info("broadcast started", logx.Int("total", res.Total))

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			res.Took = time.Since(start)
			return res, err
		}

		s.mu.Lock()
		lim := s.limiter
		s.mu.Unlock()
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				res.Took = time.Since(start)
				return res, err
			}
		}

		_, err := s.sender.SendText(ctx, t, text, opt)
		if err != nil {
			// Only a recipient who blocked the sender counts as blocked;
			// anything else (chat gone, rate limit, network) is a failure.
			if kit.KindOf(err) == kit.DeliveryBlocked {
				res.Blocked++
			} else {
				res.Failed++
			}
			s.log.Warn("broadcast send failed",
				logx.Int64("chat_id", t.ChatID),
				logx.String("kind", string(kit.KindOf(err))),
				logx.Err(err),
			)
			continue
		}

		res.Sent++
		if onProgress != nil && res.Sent%progressEvery == 0 {
			onProgress(Progress{
				Done:    res.Sent + res.Failed + res.Blocked,
				Total:   res.Total,
				Sent:    res.Sent,
				Failed:  res.Failed,
				Blocked: res.Blocked,
			})
		}
	}

	res.Took = time.Since(start)
	fields := []logx.Field{
		logx.Int("total", res.Total),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Int("blocked", res.Blocked),
		logx.Duration("took", res.Took),
	}
	if res.Failed > 0 {
		s.log.Warn("broadcast finished with failures", fields...)
	} else {
		s.log.Info("broadcast finished", fields...)
	}
	return res, nil
}

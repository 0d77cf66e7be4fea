// Package bot wires inbound transport updates to the promo, storage and
// broadcast services: the welcome flow for subscribers and the admin panel
// for the single privileged operator.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"promobot/internal/broadcast"
	"promobot/internal/config"
	"promobot/internal/convo"
	"promobot/internal/promo"
	"promobot/internal/storage"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
	"promobot/pkg/tgui"
)

const defaultMenuRedelay = 2 * time.Second

type Bot struct {
	log     logx.Logger
	adapter kit.Adapter
	store   storage.Store
	caster  *broadcast.Service
	states  *convo.Tracker
	promo   *promo.Scheduler

	mu          sync.Mutex
	owner       int64
	welcome     config.WelcomeConfig
	promoCode   string
	promoText   string
	menuRedelay time.Duration
	reportDir   string

	// menuRef is the single persistent admin panel message; all panel
	// transitions edit it in place.
	menuRef kit.MessageRef
	draft   string
}

func New(adapter kit.Adapter, store storage.Store, caster *broadcast.Service, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		log:         log,
		adapter:     adapter,
		store:       store,
		caster:      caster,
		states:      convo.NewTracker(0),
		menuRedelay: defaultMenuRedelay,
		promoCode:   promo.DefaultCode,
	}
	b.promo = promo.NewScheduler(log, b.deliverPromo)
	return b
}

// States exposes the conversation tracker for background sweeping.
func (b *Bot) States() *convo.Tracker { return b.states }

// Apply installs config-derived settings. Safe to call while running.
func (b *Bot) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	delay, err := config.ParseDurationOrDefault("promo.delay", cfg.Promo.Delay, promo.DefaultDelay)
	if err != nil {
		b.log.Warn("invalid promo.delay; keeping default", logx.Err(err))
		delay = promo.DefaultDelay
	}
	b.promo.SetDelay(delay)

	redelay, err := config.ParseDurationOrDefault("broadcast.menu_redelay", cfg.Broadcast.MenuRedelay, defaultMenuRedelay)
	if err != nil {
		b.log.Warn("invalid broadcast.menu_redelay; keeping default", logx.Err(err))
		redelay = defaultMenuRedelay
	}

	code := cfg.Promo.Code
	if code == "" {
		code = promo.DefaultCode
	}

	b.mu.Lock()
	b.owner = cfg.Telegram.OwnerUserID
	b.welcome = cfg.Welcome
	b.promoCode = code
	b.promoText = cfg.Promo.Text
	b.menuRedelay = redelay
	b.reportDir = cfg.Report.Dir
	b.mu.Unlock()
}

// Close cancels pending promo jobs.
func (b *Bot) Close() { b.promo.Stop() }

// Run consumes updates until ctx is done or the channel closes.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.handle(ctx, u)
		}
	}
}

func (b *Bot) handle(ctx context.Context, u kit.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in update handler",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()

	switch u.Kind {
	case kit.UpdateMessage:
		if u.Message != nil {
			b.handleMessage(ctx, u.Message)
		}
	case kit.UpdateCallback:
		if u.Callback != nil {
			b.handleCallback(ctx, u.Callback)
		}
	default:
		b.log.Debug("unhandled update kind", logx.String("kind", string(u.Kind)))
	}
}

func (b *Bot) isOwner(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner != 0 && userID == b.owner
}

// recordAction appends to the action log. Best effort: failures are logged,
// never propagated.
func (b *Bot) recordAction(ctx context.Context, userID int64, username, action, detail string) {
	err := b.store.AppendAction(ctx, storage.ActionEntry{
		UserID:   userID,
		Username: username,
		Action:   action,
		Detail:   detail,
	})
	if err != nil {
		b.log.Warn("action log append failed",
			logx.Int64("user_id", userID),
			logx.String("action", action),
			logx.Err(err),
		)
	}
}

func (b *Bot) deliverPromo(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b.mu.Lock()
	text := promo.FormatText(b.promoText, b.promoCode)
	b.mu.Unlock()

	_, err := b.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{ParseMode: "HTML"})
	if err != nil {
		b.log.Warn("promo delivery failed",
			logx.Int64("chat_id", chatID),
			logx.String("kind", string(kit.KindOf(err))),
			logx.Err(err),
		)
		return
	}
	b.log.Info("promo_sent", logx.Int64("chat_id", chatID))
	b.recordAction(ctx, chatID, "", "promo_sent", "")
}

// welcomeKeyboard builds the inline keyboard under the welcome message.
func welcomeKeyboard(buttons []config.WelcomeButton) *tgui.Inline {
	if len(buttons) == 0 {
		return nil
	}
	kb := tgui.NewInline()
	for _, btn := range buttons {
		if btn.URL != "" {
			kb.Row(tgui.URLBtn(btn.Text, btn.URL))
			continue
		}
		data := btn.Data
		if data == "" {
			data = btn.Text
		}
		kb.Row(tgui.Btn(btn.Text, data))
	}
	return kb
}

func formatCount(n int64) string { return strconv.FormatInt(n, 10) }

func progressLine(p broadcast.Progress) string {
	return fmt.Sprintf("Sending... %d/%d (sent %d, failed %d, blocked %d)",
		p.Done, p.Total, p.Sent, p.Failed, p.Blocked)
}

func summaryDetail(res broadcast.Result) string {
	return fmt.Sprintf("total=%d sent=%d failed=%d blocked=%d", res.Total, res.Sent, res.Failed, res.Blocked)
}

func summaryLines(res broadcast.Result) []string {
	return []string{
		fmt.Sprintf("Broadcast finished in %s.", res.Took.Round(time.Millisecond)),
		fmt.Sprintf("Sent: %d of %d", res.Sent, res.Total),
		fmt.Sprintf("Failed: %d", res.Failed),
		fmt.Sprintf("Blocked: %d", res.Blocked),
	}
}

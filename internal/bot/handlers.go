package bot

import (
	"context"
	"strings"
	"time"

	"promobot/internal/broadcast"
	"promobot/internal/convo"
	"promobot/internal/report"
	"promobot/internal/storage"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
	"promobot/pkg/tgui"
)

// Admin panel callback keys. Everything else arriving as callback data is a
// public welcome button whose presses are counted.
const (
	cbMenu       = "admin_menu"
	cbUsersCount = "admin_users_count"
	cbStats      = "admin_stats"
	cbReport     = "admin_report"
	cbBroadcast  = "admin_broadcast"
	cbConfirm    = "broadcast_confirm"
	cbCancel     = "broadcast_cancel"
)

func isAdminData(data string) bool {
	switch data {
	case cbMenu, cbUsersCount, cbStats, cbReport, cbBroadcast, cbConfirm, cbCancel:
		return true
	}
	return false
}

const accessDenied = "Access denied."

func (b *Bot) handleMessage(ctx context.Context, m *kit.Message) {
	text := strings.TrimSpace(m.Text)

	switch {
	case text == "/start" || strings.HasPrefix(text, "/start "):
		b.handleStart(ctx, m)
		return
	case text == "/admin":
		if !b.isOwner(m.FromID) {
			b.reply(ctx, m.ChatID, accessDenied)
			return
		}
		if st, _ := b.states.Get(m.FromID); st == convo.Sending {
			b.reply(ctx, m.ChatID, "A broadcast is in progress, please wait.")
			return
		}
		b.showMenu(ctx, m.ChatID)
		return
	case text == "/logs":
		if !b.isOwner(m.FromID) {
			b.reply(ctx, m.ChatID, accessDenied)
			return
		}
		b.sendLogs(ctx, m.ChatID)
		return
	}

	if b.isOwner(m.FromID) {
		switch st, _ := b.states.Get(m.FromID); st {
		case convo.AwaitingText:
			b.handleDraft(ctx, m)
			return
		case convo.Sending:
			b.reply(ctx, m.ChatID, "A broadcast is in progress, please wait.")
			return
		}
	}

	// Any interaction keeps the directory entry fresh.
	b.touch(ctx, m)
}

func (b *Bot) touch(ctx context.Context, m *kit.Message) {
	_, err := b.store.UpsertSubscriber(ctx, subscriberOf(m))
	if err != nil {
		b.log.Warn("subscriber touch failed", logx.Int64("user_id", m.FromID), logx.Err(err))
	}
}

func subscriberOf(m *kit.Message) storage.Subscriber {
	return storage.Subscriber{
		ID:        m.FromID,
		Username:  m.FromUsername,
		FirstName: m.FirstName,
		LastName:  m.LastName,
	}
}

func (b *Bot) handleStart(ctx context.Context, m *kit.Message) {
	created, err := b.store.UpsertSubscriber(ctx, subscriberOf(m))
	if err != nil {
		// Registration failure is not best-effort: bail out of this request.
		b.log.Error("subscriber registration failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		return
	}
	if created {
		b.log.Info("subscriber registered", logx.Int64("user_id", m.FromID), logx.String("username", m.FromUsername))
	}
	b.recordAction(ctx, m.FromID, m.FromUsername, "start", "")

	b.mu.Lock()
	welcome := b.welcome
	b.mu.Unlock()

	opt := &kit.SendOptions{ParseMode: "HTML"}
	if kb := welcomeKeyboard(welcome.Buttons); kb != nil {
		opt.ReplyMarkupAdapter = kb.Markup()
	}

	to := kit.ChatTarget{ChatID: m.ChatID}
	if welcome.PhotoURL != "" {
		_, err = b.adapter.SendPhoto(ctx, to, kit.Photo{URL: welcome.PhotoURL, Caption: welcome.Text}, opt)
	} else {
		_, err = b.adapter.SendText(ctx, to, welcome.Text, opt)
	}
	if err != nil {
		b.log.Warn("welcome delivery failed",
			logx.Int64("chat_id", m.ChatID),
			logx.String("kind", string(kit.KindOf(err))),
			logx.Err(err),
		)
	}

	b.promo.Schedule(m.ChatID)
}

func (b *Bot) handleCallback(ctx context.Context, c *kit.Callback) {
	data := strings.TrimSpace(c.Data)
	if data == "" {
		_ = b.adapter.AnswerCallback(ctx, c.ID, "")
		return
	}

	if isAdminData(data) {
		if !b.isOwner(c.FromID) {
			_ = b.adapter.AnswerCallback(ctx, c.ID, accessDenied)
			return
		}
		// A running broadcast owns both the Sending state and the panel
		// message; stale taps (double confirm, cancel) must not touch either.
		if st, _ := b.states.Get(c.FromID); st == convo.Sending {
			_ = b.adapter.AnswerCallback(ctx, c.ID, "A broadcast is in progress, please wait.")
			return
		}
		_ = b.adapter.AnswerCallback(ctx, c.ID, "")
		b.handleAdminAction(ctx, c, data)
		return
	}

	// Public welcome-button press: count it. Both writes are best effort.
	if err := b.store.IncrButton(ctx, data); err != nil {
		b.log.Warn("button counter increment failed", logx.String("key", data), logx.Err(err))
	}
	b.recordAction(ctx, c.FromID, "", "button", data)
	_ = b.adapter.AnswerCallback(ctx, c.ID, "")
}

// ---- admin panel ----

func (b *Bot) handleAdminAction(ctx context.Context, c *kit.Callback, data string) {
	switch data {
	case cbMenu:
		b.resetFlow(c.FromID)
		b.showMenu(ctx, c.ChatID)
	case cbUsersCount:
		n, err := b.store.CountSubscribers(ctx)
		if err != nil {
			b.log.Warn("subscriber count failed", logx.Err(err))
			b.showError(ctx, c.ChatID, "Could not read the subscriber count.")
			return
		}
		b.showView(ctx, c.ChatID, tgui.New().
			Title("👥", "Subscribers").
			Line("Currently registered: "+formatCount(n)).
			Inline(backKeyboard()).
			Build())
	case cbStats:
		stats, err := b.store.ButtonStats(ctx)
		if err != nil {
			b.log.Warn("button stats read failed", logx.Err(err))
			b.showError(ctx, c.ChatID, "Could not read button statistics.")
			return
		}
		v := tgui.New().Title("📊", "Button statistics")
		if len(stats) == 0 {
			v.Line("No button presses yet.")
		}
		for _, st := range stats {
			v.KV(st.Key, formatCount(st.Count))
		}
		b.showView(ctx, c.ChatID, v.Inline(backKeyboard()).Build())
	case cbReport:
		b.sendReport(ctx, c.ChatID)
	case cbBroadcast:
		b.states.Set(c.FromID, convo.AwaitingText, "")
		b.showView(ctx, c.ChatID, tgui.New().
			Title("📢", "Broadcast").
			Line("Send the broadcast text as a regular message.").
			Inline(tgui.NewInline().Row(tgui.Btn("Cancel", cbCancel))).
			Build())
	case cbConfirm:
		b.confirmBroadcast(ctx, c)
	case cbCancel:
		b.resetFlow(c.FromID)
		b.showMenu(ctx, c.ChatID)
	}
}

func (b *Bot) showMenu(ctx context.Context, chatID int64) {
	kb := tgui.NewInline().
		Row(tgui.Btn("👥 Subscriber count", cbUsersCount)).
		Row(tgui.Btn("📊 Button statistics", cbStats)).
		Row(tgui.Btn("📄 Subscriber report", cbReport)).
		Row(tgui.Btn("📢 Broadcast", cbBroadcast))
	b.showView(ctx, chatID, tgui.New().Title("⚙️", "Admin panel").Inline(kb).Build())
}

func backKeyboard() *tgui.Inline {
	return tgui.NewInline().Row(tgui.Btn("⬅️ Back", cbMenu))
}

// showView edits the persistent panel message in place, falling back to a
// fresh message when there is nothing to edit yet.
func (b *Bot) showView(ctx context.Context, chatID int64, msg tgui.Message) {
	b.mu.Lock()
	ref := b.menuRef
	b.mu.Unlock()

	if ref.MessageID != 0 && ref.ChatID == chatID {
		if err := msg.Edit(ctx, b.adapter, ref); err == nil {
			return
		}
	}
	newRef, err := msg.Send(ctx, b.adapter, kit.ChatTarget{ChatID: chatID})
	if err != nil {
		b.log.Warn("panel message send failed", logx.Int64("chat_id", chatID), logx.Err(err))
		return
	}
	b.mu.Lock()
	b.menuRef = newRef
	b.mu.Unlock()
}

func (b *Bot) showError(ctx context.Context, chatID int64, text string) {
	b.showView(ctx, chatID, tgui.New().
		Title("❗", "Error").
		Line(text).
		Inline(backKeyboard()).
		Build())
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	_, err := b.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{})
	if err != nil {
		b.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (b *Bot) resetFlow(userID int64) {
	b.states.Clear(userID)
	b.mu.Lock()
	b.draft = ""
	b.mu.Unlock()
}

func (b *Bot) sendReport(ctx context.Context, chatID int64) {
	subs, err := b.store.ListSubscribers(ctx)
	if err != nil {
		b.log.Warn("subscriber list read failed", logx.Err(err))
		b.showError(ctx, chatID, "Could not build the report.")
		return
	}

	b.mu.Lock()
	dir := b.reportDir
	b.mu.Unlock()

	path, cleanup, err := report.SubscribersCSV(dir, subs)
	if err != nil {
		b.log.Warn("report generation failed", logx.Err(err))
		b.showError(ctx, chatID, "Could not build the report.")
		return
	}
	defer cleanup()

	_, err = b.adapter.SendDocument(ctx, kit.ChatTarget{ChatID: chatID}, kit.Document{
		Path:     path,
		FileName: "subscribers.csv",
		Caption:  "Subscriber report.",
	})
	if err != nil {
		b.log.Warn("report delivery failed", logx.Err(err))
		b.showError(ctx, chatID, "Could not deliver the report.")
	}
}

func (b *Bot) sendLogs(ctx context.Context, chatID int64) {
	entries, err := b.store.ListActions(ctx, 0)
	if err != nil {
		b.log.Warn("action log read failed", logx.Err(err))
		b.reply(ctx, chatID, "Could not read the logs.")
		return
	}
	if len(entries) == 0 {
		b.reply(ctx, chatID, "No logs yet.")
		return
	}

	b.mu.Lock()
	dir := b.reportDir
	b.mu.Unlock()

	path, cleanup, err := report.ActionsJSON(dir, entries)
	if err != nil {
		b.log.Warn("log export failed", logx.Err(err))
		b.reply(ctx, chatID, "Could not export the logs.")
		return
	}
	defer cleanup()

	_, err = b.adapter.SendDocument(ctx, kit.ChatTarget{ChatID: chatID}, kit.Document{
		Path:     path,
		FileName: "logs.json",
		Caption:  "User action log.",
	})
	if err != nil {
		b.log.Warn("log delivery failed", logx.Err(err))
		b.reply(ctx, chatID, "Could not deliver the logs.")
	}
}

// ---- broadcast flow ----

func (b *Bot) handleDraft(ctx context.Context, m *kit.Message) {
	text := m.Text
	if err := broadcast.ValidateText(text); err != nil {
		// Stay in AwaitingText so the operator can resubmit.
		switch err {
		case broadcast.ErrEmptyText:
			b.reply(ctx, m.ChatID, "The broadcast text is empty. Send the message text.")
		case broadcast.ErrTextTooLong:
			b.reply(ctx, m.ChatID, "The text is too long (over 4096 characters). Send a shorter one.")
		default:
			b.reply(ctx, m.ChatID, "The text cannot be broadcast. Send another one.")
		}
		return
	}

	b.mu.Lock()
	b.draft = text
	b.mu.Unlock()
	b.states.Set(m.FromID, convo.AwaitingConfirmation, text)

	b.showView(ctx, m.ChatID, tgui.New().
		Title("📢", "Confirm broadcast").
		Line("The following text will be sent to every subscriber:").
		Blank().
		Line(tgui.TruncRunes(text, 500)).
		Inline(tgui.NewInline().
			Row(tgui.Btn("✅ Send", cbConfirm), tgui.Btn("❌ Cancel", cbCancel))).
		Build())
}

func (b *Bot) confirmBroadcast(ctx context.Context, c *kit.Callback) {
	st, _ := b.states.Get(c.FromID)
	b.mu.Lock()
	draft := b.draft
	b.mu.Unlock()

	if st != convo.AwaitingConfirmation || draft == "" {
		// State desync (restart, expired flow). Reset rather than guess.
		b.log.Warn("broadcast confirmation without a draft",
			logx.Int64("user_id", c.FromID),
			logx.String("state", st.String()),
		)
		b.resetFlow(c.FromID)
		b.showError(ctx, c.ChatID, "The broadcast draft was lost. Start over from the menu.")
		return
	}

	// Snapshot the recipient list now; registrations during the run are
	// intentionally not picked up.
	subs, err := b.store.ListSubscribers(ctx)
	if err != nil {
		b.log.Warn("subscriber snapshot failed", logx.Err(err))
		b.resetFlow(c.FromID)
		b.showError(ctx, c.ChatID, "Could not read the subscriber list.")
		return
	}
	targets := make([]kit.ChatTarget, len(subs))
	for i, s := range subs {
		targets[i] = kit.ChatTarget{ChatID: s.ID}
	}

	b.states.Set(c.FromID, convo.Sending, "")
	go b.runBroadcast(ctx, c.FromID, c.ChatID, draft, targets)
}

func (b *Bot) runBroadcast(ctx context.Context, ownerID, chatID int64, text string, targets []kit.ChatTarget) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in broadcast run", logx.Any("panic", r))
		}
		b.resetFlow(ownerID)
	}()

	b.showView(ctx, chatID, statusMessage(broadcast.Progress{Total: len(targets)}))

	res, err := b.caster.Run(ctx, targets, text, &kit.SendOptions{}, func(p broadcast.Progress) {
		b.showView(ctx, chatID, statusMessage(p))
	})
	if err != nil {
		b.log.Warn("broadcast aborted", logx.Err(err))
		return
	}

	v := tgui.New().Title("📢", "Broadcast summary")
	for _, line := range summaryLines(res) {
		v.Line(line)
	}
	b.showView(ctx, chatID, v.Build())
	b.recordAction(ctx, ownerID, "", "broadcast", summaryDetail(res))

	b.mu.Lock()
	redelay := b.menuRedelay
	b.mu.Unlock()

	// Short pause so the operator sees the summary, then bring the menu back.
	select {
	case <-ctx.Done():
		return
	case <-time.After(redelay):
	}
	b.showMenu(ctx, chatID)
}

func statusMessage(p broadcast.Progress) tgui.Message {
	return tgui.New().
		Title("📢", "Broadcast").
		Line(progressLine(p)).
		Build()
}

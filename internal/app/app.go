// Package app assembles the bot: config, logging, storage, transport and
// the services around them, with hot reload for the parts that can change
// at runtime.
package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"promobot/internal/bot"
	"promobot/internal/broadcast"
	"promobot/internal/config"
	"promobot/internal/digest"
	"promobot/internal/runtime/supervisor"
	"promobot/internal/storage"
	kit "promobot/internal/transport"
	telegram "promobot/internal/transport/telegram"
	logx "promobot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store    storage.Store
	storeCfg storage.Config
	adapter  kit.Adapter
	caster   *broadcast.Service
	bot      *bot.Bot
	digest   *digest.Service

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	token := strings.TrimSpace(cfg.Telegram.Token)
	if env := strings.TrimSpace(os.Getenv("BOT_TOKEN")); env != "" {
		token = env
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with Telegram logging disabled, set the target, then Apply()
	// the final config so the sink never warns about a missing target.
	baseLogCfg := mapLogConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))
	if id := logChatID(cfg); id != 0 {
		logSvc.SetTelegramTarget(id)
	}
	logSvc.Apply(mapLogConfig(cfg))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	caster := broadcast.New(broadcast.Config{RatePerSec: cfg.Broadcast.RatePerSec}, ad,
		log.With(logx.String("comp", "broadcast")))

	b := bot.New(ad, store, caster, log.With(logx.String("comp", "bot")))
	b.Apply(cfg)

	dig := digest.New(ad, store, log.With(logx.String("comp", "digest")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		storeCfg: sc,
		adapter:  ad,
		caster:   caster,
		bot:      b,
		digest:   dig,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	if cm, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
		err := cm.UpdateMenuCommands(mctx, []kit.BotCommand{
			{Command: "start", Description: "Subscribe and get the welcome offer"},
			{Command: "admin", Description: "Open the admin panel"},
			{Command: "logs", Description: "Download the action log"},
		})
		cancel()
		if err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	}

	cfg := a.cfgm.Get()
	if err := a.digest.Apply(mapDigestSettings(cfg)); err != nil {
		a.log.Warn("digest not scheduled", logx.Err(err))
	}

	a.sup.Go0("convo.sweep", a.bot.States().Run)
	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	// log target first so Apply() never warns about a missing chat
	a.logs.SetTelegramTarget(logChatID(cfg))
	a.logs.Apply(mapLogConfig(cfg))

	a.bot.Apply(cfg)
	a.caster.Apply(broadcast.Config{RatePerSec: cfg.Broadcast.RatePerSec})
	if err := a.digest.Apply(mapDigestSettings(cfg)); err != nil {
		a.log.Warn("invalid digest config; digest disabled", logx.Err(err))
	}

	if sc, err := mapStorageConfig(cfg); err == nil && sc != a.storeCfg {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("digest", time.Second, func(context.Context) error { a.digest.Stop(); return nil })
	step("bot", time.Second, func(context.Context) error { a.bot.Close(); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// ---- config mapping & validation ----

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./data/promobot.db"
		if strings.EqualFold(strings.TrimSpace(cfg.Storage.Driver), "file") {
			path = "./data"
		}
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        path,
		BusyTimeout: busy,
	}, nil
}

func mapDigestSettings(cfg *config.Config) digest.Settings {
	return digest.Settings{
		Enabled:  cfg.Digest.Enabled,
		Schedule: cfg.Digest.Schedule,
		ChatID:   logChatID(cfg),
	}
}

func logChatID(cfg *config.Config) int64 {
	raw := strings.TrimSpace(cfg.Telegram.LogChat)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is empty")
	}
	if cfg.Telegram.OwnerUserID < 0 {
		return fmt.Errorf("telegram.owner_user_id must be >= 0")
	}
	if raw := strings.TrimSpace(cfg.Telegram.LogChat); raw != "" {
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return fmt.Errorf("telegram.log_chat: not a chat id: %q", raw)
		}
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("promo.delay", cfg.Promo.Delay); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("broadcast.menu_redelay", cfg.Broadcast.MenuRedelay); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if cfg.Broadcast.RatePerSec < 0 {
		return fmt.Errorf("broadcast.rate_per_sec must be >= 0")
	}
	for i, btn := range cfg.Welcome.Buttons {
		if strings.TrimSpace(btn.Text) == "" {
			return fmt.Errorf("welcome.buttons[%d].text must not be empty", i)
		}
	}
	if s := strings.TrimSpace(cfg.Digest.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("digest.schedule: %w", err)
		}
	}
	return nil
}

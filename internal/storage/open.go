package storage

import (
	"context"
	"errors"
	"strings"

	logx "promobot/pkg/logx"
)

// Store is the persistence API used by the bot and its services.
type Store interface {
	// UpsertSubscriber registers a subscriber or refreshes their profile
	// fields and last-seen time. JoinedAt is preserved on re-register.
	// Returns true when the subscriber is new.
	UpsertSubscriber(ctx context.Context, s Subscriber) (created bool, err error)
	// ListSubscribers returns all subscribers, most recently joined first.
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
	CountSubscribers(ctx context.Context) (int64, error)

	AppendAction(ctx context.Context, e ActionEntry) error
	// ListActions returns the most recent entries, oldest first.
	// limit <= 0 means all.
	ListActions(ctx context.Context, limit int) ([]ActionEntry, error)

	IncrButton(ctx context.Context, key string) error
	// ButtonStats returns counters ordered by count descending, then key.
	ButtonStats(ctx context.Context) ([]ButtonStat, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "promobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertSubscriber(ctx context.Context, sub Subscriber) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	now := time.Now()
	if sub.JoinedAt.IsZero() {
		sub.JoinedAt = now
	}
	if sub.LastSeenAt.IsZero() {
		sub.LastSeenAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM subscribers WHERE id = ?`, sub.ID).Scan(&exists)
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscribers(id, username, first_name, last_name, joined_at, last_seen_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   username=excluded.username,
		   first_name=excluded.first_name,
		   last_name=excluded.last_name,
		   last_seen_at=excluded.last_seen_at`,
		sub.ID, nullStr(sub.Username), nullStr(sub.FirstName), nullStr(sub.LastName),
		sub.JoinedAt.UnixMilli(), sub.LastSeenAt.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return exists == 0, nil
}

func (s *sqliteStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, first_name, last_name, joined_at, last_seen_at
		 FROM subscribers ORDER BY joined_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		var (
			sub                   Subscriber
			username, first, last sql.NullString
			joinedMS, lastSeenMS  int64
		)
		if err := rows.Scan(&sub.ID, &username, &first, &last, &joinedMS, &lastSeenMS); err != nil {
			return nil, err
		}
		sub.Username = username.String
		sub.FirstName = first.String
		sub.LastName = last.String
		sub.JoinedAt = time.UnixMilli(joinedMS)
		sub.LastSeenAt = time.UnixMilli(lastSeenMS)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountSubscribers(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM subscribers`).Scan(&n)
	return n, err
}

func (s *sqliteStore) AppendAction(ctx context.Context, e ActionEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions(at, user_id, username, action, detail) VALUES(?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.UserID, nullStr(e.Username), e.Action, nullStr(e.Detail),
	)
	return err
}

func (s *sqliteStore) ListActions(ctx context.Context, limit int) ([]ActionEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT at, user_id, username, action, detail FROM actions ORDER BY id`
	var args []any
	if limit > 0 {
		// newest N, returned oldest first
		q = `SELECT at, user_id, username, action, detail FROM
		       (SELECT id, at, user_id, username, action, detail FROM actions ORDER BY id DESC LIMIT ?)
		     ORDER BY id`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionEntry
	for rows.Next() {
		var (
			e                ActionEntry
			atRaw            string
			username, detail sql.NullString
		)
		if err := rows.Scan(&atRaw, &e.UserID, &username, &e.Action, &detail); err != nil {
			return nil, err
		}
		e.At = parseTimeField(atRaw)
		e.Username = username.String
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) IncrButton(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO button_stats(key, count) VALUES(?, 1)
		 ON CONFLICT(key) DO UPDATE SET count = count + 1`,
		key,
	)
	return err
}

func (s *sqliteStore) ButtonStats(ctx context.Context) ([]ButtonStat, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, count FROM button_stats ORDER BY count DESC, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ButtonStat
	for rows.Next() {
		var st ButtonStat
		if err := rows.Scan(&st.Key, &st.Count); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func parseTimeField(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

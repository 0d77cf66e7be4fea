package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "promobot/pkg/logx"
)

// fileStore is a dependency-free persistence backend kept for small
// deployments and for migrating old installations.
//
// Files (under the configured directory):
//   - users.json  (array of subscribers)
//   - logs.json   (array of action entries)
//   - stats.json  (object: button key -> count)
//
// Everything is held in memory and rewritten atomically on change, so it is
// only suitable for modest subscriber counts.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	dir string

	users map[int64]Subscriber
	logs  []ActionEntry
	stats map[string]int64
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:   log,
		dir:   dir,
		users: map[int64]Subscriber{},
		stats: map[string]int64{},
	}

	var users []Subscriber
	if err := readJSONFile(s.usersPath(), &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	if err := readJSONFile(s.logsPath(), &s.logs); err != nil {
		return nil, err
	}
	if err := readJSONFile(s.statsPath(), &s.stats); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) usersPath() string { return filepath.Join(s.dir, "users.json") }
func (s *fileStore) logsPath() string  { return filepath.Join(s.dir, "logs.json") }
func (s *fileStore) statsPath() string { return filepath.Join(s.dir, "stats.json") }

func (s *fileStore) Close() error { return nil }

func (s *fileStore) UpsertSubscriber(ctx context.Context, sub Subscriber) (bool, error) {
	_ = ctx
	now := time.Now()
	if sub.JoinedAt.IsZero() {
		sub.JoinedAt = now
	}
	if sub.LastSeenAt.IsZero() {
		sub.LastSeenAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[sub.ID]
	if ok {
		// keep the original join time
		sub.JoinedAt = prev.JoinedAt
	}
	s.users[sub.ID] = sub
	return !ok, s.flushUsersLocked()
}

func (s *fileStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Subscriber, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.After(out[j].JoinedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *fileStore) CountSubscribers(ctx context.Context) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *fileStore) AppendAction(ctx context.Context, e ActionEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	return writeJSONFile(s.logsPath(), s.logs)
}

func (s *fileStore) ListActions(ctx context.Context, limit int) ([]ActionEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.logs
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]ActionEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *fileStore) IncrButton(ctx context.Context, key string) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[key]++
	return writeJSONFile(s.statsPath(), s.stats)
}

func (s *fileStore) ButtonStats(ctx context.Context) ([]ButtonStat, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ButtonStat, 0, len(s.stats))
	for k, v := range s.stats {
		out = append(out, ButtonStat{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *fileStore) flushUsersLocked() error {
	users := make([]Subscriber, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return writeJSONFile(s.usersPath(), users)
}

func readJSONFile(path string, out any) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func writeJSONFile(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Package report renders storage contents into files suitable for sending
// as Telegram documents.
package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"promobot/internal/storage"
)

// SubscribersCSV writes the subscriber list to a temp CSV file.
// The caller sends the file and then invokes cleanup to remove it.
func SubscribersCSV(dir string, subs []storage.Subscriber) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp(dir, "subscribers-*.csv")
	if err != nil {
		return "", nil, err
	}
	path = f.Name()
	cleanup = func() { _ = os.Remove(path) }

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "username", "first_name", "last_name", "joined_at", "last_seen_at"}); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	for _, s := range subs {
		rec := []string{
			strconv.FormatInt(s.ID, 10),
			s.Username,
			s.FirstName,
			s.LastName,
			formatTime(s.JoinedAt),
			formatTime(s.LastSeenAt),
		}
		if err := w.Write(rec); err != nil {
			_ = f.Close()
			cleanup()
			return "", nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// ActionsJSON writes the action log to a temp JSON file for /logs.
func ActionsJSON(dir string, entries []storage.ActionEntry) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp(dir, "actions-*.json")
	if err != nil {
		return "", nil, err
	}
	path = f.Name()
	cleanup = func() { _ = os.Remove(path) }

	if entries == nil {
		entries = []storage.ActionEntry{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

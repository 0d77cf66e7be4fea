package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"testing"
	"time"

	"promobot/internal/storage"
)

func TestSubscribersCSV(t *testing.T) {
	joined := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	subs := []storage.Subscriber{
		{ID: 2, Username: "bob", JoinedAt: joined.Add(time.Hour), LastSeenAt: joined.Add(2 * time.Hour)},
		{ID: 1, Username: "alice", FirstName: "Alice", JoinedAt: joined, LastSeenAt: joined},
	}

	path, cleanup, err := SubscribersCSV(t.TempDir(), subs)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	records, err := csv.NewReader(f).ReadAll()
	_ = f.Close()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}
	if records[0][0] != "id" || records[0][4] != "joined_at" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "2" || records[1][1] != "bob" {
		t.Fatalf("row order not preserved: %v", records[1])
	}
	if records[2][4] != "2024-03-01T12:00:00Z" {
		t.Fatalf("joined_at = %q", records[2][4])
	}

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("cleanup left the file behind: %v", err)
	}
}

func TestActionsJSON(t *testing.T) {
	entries := []storage.ActionEntry{
		{At: time.Now(), UserID: 1, Action: "start"},
		{At: time.Now(), UserID: 1, Action: "button", Detail: "catalog"},
	}

	path, cleanup, err := ActionsJSON(t.TempDir(), entries)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	defer cleanup()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got []storage.ActionEntry
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 || got[1].Detail != "catalog" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestActionsJSONEmpty(t *testing.T) {
	path, cleanup, err := ActionsJSON(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	defer cleanup()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got []storage.ActionEntry
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty array, got %v", got)
	}
}

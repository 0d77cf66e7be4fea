package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "promobot/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "data")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	t.Cleanup(func() {
		_ = sq.Close()
		_ = fs.Close()
	})
	return map[string]Store{"sqlite": sq, "file": fs}
}

func TestUpsertSubscriberIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			created, err := st.UpsertSubscriber(ctx, Subscriber{ID: 42, Username: "alice"})
			if err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if !created {
				t.Fatalf("first upsert should report created")
			}

			created, err = st.UpsertSubscriber(ctx, Subscriber{ID: 42, Username: "alice_new"})
			if err != nil {
				t.Fatalf("second upsert: %v", err)
			}
			if created {
				t.Fatalf("second upsert should not report created")
			}

			n, err := st.CountSubscribers(ctx)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != 1 {
				t.Fatalf("count = %d, want 1", n)
			}

			subs, err := st.ListSubscribers(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(subs) != 1 || subs[0].Username != "alice_new" {
				t.Fatalf("unexpected subscribers: %+v", subs)
			}
		})
	}
}

func TestListSubscribersNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []int64{100, 200, 300} {
				_, err := st.UpsertSubscriber(ctx, Subscriber{
					ID:       id,
					JoinedAt: base.Add(time.Duration(i) * time.Minute),
				})
				if err != nil {
					t.Fatalf("upsert %d: %v", id, err)
				}
			}

			subs, err := st.ListSubscribers(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(subs) != 3 {
				t.Fatalf("len = %d, want 3", len(subs))
			}
			want := []int64{300, 200, 100}
			for i, w := range want {
				if subs[i].ID != w {
					t.Fatalf("subs[%d].ID = %d, want %d (order: %+v)", i, subs[i].ID, w, subs)
				}
			}
		})
	}
}

func TestIncrButtonAndStats(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				if err := st.IncrButton(ctx, "catalog"); err != nil {
					t.Fatalf("incr: %v", err)
				}
			}
			if err := st.IncrButton(ctx, "support"); err != nil {
				t.Fatalf("incr: %v", err)
			}
			if err := st.IncrButton(ctx, ""); err != nil {
				t.Fatalf("incr empty key: %v", err)
			}

			stats, err := st.ButtonStats(ctx)
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if len(stats) != 2 {
				t.Fatalf("len = %d, want 2 (%+v)", len(stats), stats)
			}
			if stats[0].Key != "catalog" || stats[0].Count != 3 {
				t.Fatalf("stats[0] = %+v, want catalog/3", stats[0])
			}
			if stats[1].Key != "support" || stats[1].Count != 1 {
				t.Fatalf("stats[1] = %+v, want support/1", stats[1])
			}
		})
	}
}

func TestAppendAndListActions(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, a := range []string{"start", "button", "promo_sent"} {
				err := st.AppendAction(ctx, ActionEntry{UserID: 7, Action: a})
				if err != nil {
					t.Fatalf("append %q: %v", a, err)
				}
			}

			all, err := st.ListActions(ctx, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("len = %d, want 3", len(all))
			}
			if all[0].Action != "start" || all[2].Action != "promo_sent" {
				t.Fatalf("unexpected order: %+v", all)
			}

			tail, err := st.ListActions(ctx, 2)
			if err != nil {
				t.Fatalf("list limited: %v", err)
			}
			if len(tail) != 2 || tail[0].Action != "button" || tail[1].Action != "promo_sent" {
				t.Fatalf("unexpected tail: %+v", tail)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	if err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

package telegram

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "promobot/internal/transport"
)

func TestSplitTelegramTextShort(t *testing.T) {
	got := splitTelegramText("hello", 4096)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	got := splitTelegramText(text, 100)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2 (%v)", len(got), got)
	}
	if got[0] != strings.Repeat("a", 60) {
		t.Fatalf("first chunk = %q, want the a-line", got[0])
	}
	if got[1] != strings.Repeat("b", 60) {
		t.Fatalf("second chunk = %q, want the b-line", got[1])
	}
}

func TestSplitTelegramTextHardSplit(t *testing.T) {
	text := strings.Repeat("я", 250)
	got := splitTelegramText(text, 100)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	total := 0
	for _, c := range got {
		n := len([]rune(c))
		if n > 100 {
			t.Fatalf("chunk of %d runes exceeds limit", n)
		}
		total += n
	}
	if total != 250 {
		t.Fatalf("runes after split = %d, want 250", total)
	}
}

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		err  error
		want kit.DeliveryKind
	}{
		{tele.ErrBlockedByUser, kit.DeliveryBlocked},
		{tele.ErrUserIsDeactivated, kit.DeliveryBlocked},
		{tele.ErrNotStartedByUser, kit.DeliveryBlocked},
		{tele.ErrChatNotFound, kit.DeliveryChatNotFound},
		{errors.New("telegram: Forbidden: bot was blocked by the user"), kit.DeliveryBlocked},
		{errors.New("telegram: Bad Request: chat not found"), kit.DeliveryChatNotFound},
		{errors.New("telegram: Too Many Requests: retry after 5"), kit.DeliveryGeneric},
	}
	for _, tc := range cases {
		got := classify(tc.err)
		if kit.KindOf(got) != tc.want {
			t.Fatalf("classify(%v) = %v, want %v", tc.err, kit.KindOf(got), tc.want)
		}
		var de *kit.DeliveryError
		if !errors.As(got, &de) {
			t.Fatalf("classify(%v) did not return a DeliveryError", tc.err)
		}
	}
	if classify(nil) != nil {
		t.Fatalf("classify(nil) should be nil")
	}
}

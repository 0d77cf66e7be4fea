package broadcast

import (
	"errors"
	"time"
	"unicode/utf8"
)

// MaxTextRunes is the Telegram message limit; drafts longer than this are
// rejected up front instead of failing per recipient.
const MaxTextRunes = 4096

var (
	ErrEmptyText   = errors.New("broadcast text is empty")
	ErrTextTooLong = errors.New("broadcast text exceeds limit")
	ErrBusy        = errors.New("a broadcast is already running")
)

type Config struct {
	// RatePerSec caps outbound sends. 0 means default (25).
	RatePerSec int
}

// Result is the outcome of one completed fan-out.
// Sent + Failed + Blocked always equals Total.
type Result struct {
	Total   int
	Sent    int
	Failed  int
	Blocked int
	Took    time.Duration
}

// Progress is a point-in-time counter snapshot handed to the progress
// callback during a run.
type Progress struct {
	Done    int
	Total   int
	Sent    int
	Failed  int
	Blocked int
}

// ValidateText checks a draft before it may be confirmed.
func ValidateText(text string) error {
	if text == "" {
		return ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextRunes {
		return ErrTextTooLong
	}
	return nil
}

package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Promo     PromoConfig     `json:"promo"`
	Welcome   WelcomeConfig   `json:"welcome"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Report    ReportConfig    `json:"report,omitempty"`
	Digest    DigestConfig    `json:"digest,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// OwnerUserID is the single privileged operator. Everyone else is denied
	// admin actions.
	OwnerUserID int64 `json:"owner_user_id"`
	// LogChat is an optional chat id for operational log delivery and the
	// daily digest.
	LogChat string `json:"log_chat,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence driver.
//
// Driver values:
//   - "sqlite": single-file database (default)
//   - "file": JSON files next to Path (legacy layout)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PromoConfig controls the delayed promo message sent after /start.
type PromoConfig struct {
	// Delay is a Go duration string; the promo is sent this long after the
	// subscriber's first /start.
	Delay string `json:"delay"`
	Code  string `json:"code"`
	// Text is an optional HTML template; a "%s" verb receives the code.
	// Empty means the built-in default.
	Text string `json:"text,omitempty"`
}

// WelcomeConfig controls the /start reply.
type WelcomeConfig struct {
	PhotoURL string          `json:"photo_url,omitempty"`
	Text     string          `json:"text"`
	Buttons  []WelcomeButton `json:"buttons,omitempty"`
}

// WelcomeButton is one inline button under the welcome message. A button
// with a URL opens it directly; without one it is a callback button whose
// presses are counted (Data defaults to Text).
type WelcomeButton struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
}

// BroadcastConfig controls the fan-out loop.
type BroadcastConfig struct {
	// RatePerSec caps outbound sends during a broadcast. 0 means default (25).
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// MenuRedelay is how long after the final summary the admin menu is
	// redisplayed. Go duration string; default "2s".
	MenuRedelay string `json:"menu_redelay,omitempty"`
}

// ReportConfig controls the subscriber report export.
type ReportConfig struct {
	// Dir overrides the temp directory for generated artifacts.
	Dir string `json:"dir,omitempty"`
}

// DigestConfig controls the optional daily stats digest posted to the log chat.
type DigestConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron expression; default "0 9 * * *".
	Schedule string `json:"schedule,omitempty"`
}

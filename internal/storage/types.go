package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": JSON files next to Path (legacy layout)
//
// If Driver is empty, sqlite is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Subscriber is one chat the bot may message.
type Subscriber struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username,omitempty"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	JoinedAt   time.Time `json:"joined_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ActionEntry records a user-visible bot interaction.
// Keep it compact and schema-stable.
type ActionEntry struct {
	At       time.Time `json:"at"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Action   string    `json:"action"`
	Detail   string    `json:"detail,omitempty"`
}

// ButtonStat is one inline-button counter.
type ButtonStat struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxPayloadRunes bounds Task.Payload, counted in characters.
const MaxPayloadRunes = 500

// DefaultPendingLimit caps GetPending when the caller passes limit <= 0.
const DefaultPendingLimit = 1000

var (
	ErrDisabled     = errors.New("storage disabled")
	ErrPayloadBound = fmt.Errorf("payload must be 1..%d characters", MaxPayloadRunes)
)

// ChatKind labels the delivery chat. It only affects presentation.
type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
)

func ParseChatKind(s string) (ChatKind, error) {
	switch ChatKind(strings.ToLower(strings.TrimSpace(s))) {
	case ChatPrivate:
		return ChatPrivate, nil
	case ChatGroup, "supergroup":
		return ChatGroup, nil
	default:
		return "", fmt.Errorf("unknown chat kind %q", s)
	}
}

// Task is one persisted reminder. Times are UTC.
type Task struct {
	ID           int64
	OwnerID      int64
	TargetChatID int64
	ChatKind     ChatKind
	Payload      string
	ExecuteAt    time.Time
	IsExecuted   bool
	CreatedAt    time.Time
	ExecutedAt   time.Time // zero while pending
}

// NewTask is the input to Store.Create.
type NewTask struct {
	OwnerID      int64
	TargetChatID int64
	ChatKind     ChatKind
	Payload      string
	ExecuteAt    time.Time
	CreatedAt    time.Time
}

// Config configures storage.
//
// Driver values:
//   - "sqlite": database file at Path (default)
//   - "postgres": server reached through DSN
//
// "none" disables storage; Open then returns ErrDisabled.
type Config struct {
	Driver          string
	Path            string
	DSN             string
	BusyTimeout     time.Duration // sqlite only
	MaxOpenConns    int           // postgres only
	MaxIdleConns    int           // postgres only
	ConnMaxLifetime time.Duration // postgres only
}

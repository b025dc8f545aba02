package reminder

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"telepal/internal/storage"
)

// MaxPayload is the reminder text bound, in characters.
const MaxPayload = storage.MaxPayloadRunes

const (
	ReasonEmpty       = "must not be empty"
	ReasonNotFuture   = "time must be in the future"
	ReasonMissingTZ   = "missing timezone"
	ReasonBadFormat   = "bad format"
	ReasonMissing     = "required"
	ReasonUnknownTZ   = "unknown timezone"
	ReasonUnknownKind = "unknown chat kind"
	reasonTooLongFmt  = "too long (max %d characters, got %d)"
)

func validatePayload(payload string) error {
	if strings.TrimSpace(payload) == "" {
		return invalid("payload", ReasonEmpty)
	}
	if n := utf8.RuneCountInString(payload); n > MaxPayload {
		return invalid("payload", fmt.Sprintf(reasonTooLongFmt, MaxPayload, n))
	}
	return nil
}

func validateExecuteAt(at, now time.Time) error {
	if at.IsZero() {
		return invalid("execute_at", ReasonMissing)
	}
	if !at.UTC().After(now.UTC()) {
		return invalid("execute_at", ReasonNotFuture)
	}
	return nil
}

// executeAtLayouts accept ISO 8601 with an explicit offset or Z.
var executeAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

// naiveLayouts parse but carry no offset; they are rejected as ambiguous.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseExecuteAt parses an ISO 8601 timestamp that must carry a timezone.
func ParseExecuteAt(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, invalid("execute_at", ReasonMissing)
	}
	for _, layout := range executeAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return time.Time{}, invalid("execute_at", ReasonMissingTZ)
		}
	}
	return time.Time{}, invalid("execute_at", ReasonBadFormat)
}

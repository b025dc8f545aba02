package bot

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"telepal/internal/reminder"
)

var errBadWhen = errors.New("use a duration like 90m, a clock time like 14:30, or 2030-01-15T14:30:00+08:00")

// ParseWhen resolves the time argument of /remind relative to now:
// a positive Go duration, HH:MM in loc meaning its next occurrence, or a
// timestamp accepted by reminder.ParseExecuteAt. A timestamp without an
// offset is rejected with the same ValidationError the tools return.
func ParseWhen(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errBadWhen
	}
	if loc == nil {
		loc = time.UTC
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return time.Time{}, errors.New("duration must be positive")
		}
		return now.Add(d), nil
	}
	if h, m, ok := parseClock(s); ok {
		local := now.In(loc)
		at := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
		if !at.After(local) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil
	}
	t, err := reminder.ParseExecuteAt(s)
	if err == nil {
		return t, nil
	}
	var ve *reminder.ValidationError
	if errors.As(err, &ve) && ve.Reason == reminder.ReasonMissingTZ {
		return time.Time{}, err
	}
	return time.Time{}, errBadWhen
}

func parseClock(s string) (int, int, bool) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

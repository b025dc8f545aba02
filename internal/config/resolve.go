package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"telepal/internal/storage"
	logx "telepal/pkg/logx"
)

// LogChat parses telegram.group_log. ok is false when it is unset.
func (c *Config) LogChat() (chatID int64, threadID int, ok bool, err error) {
	raw := strings.TrimSpace(c.Telegram.GroupLog)
	if raw == "" {
		return 0, 0, false, nil
	}
	chat, thread, hasThread := strings.Cut(raw, ":")
	chatID, err = strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("telegram.group_log: invalid chat id %q", chat)
	}
	if hasThread {
		threadID, err = strconv.Atoi(strings.TrimSpace(thread))
		if err != nil {
			return 0, 0, false, fmt.Errorf("telegram.group_log: invalid thread id %q", thread)
		}
	}
	return chatID, threadID, true, nil
}

// LogConfig maps the logging section onto logx. The Telegram sink is
// enabled only when group_log is set too.
func (c *Config) LogConfig() logx.Config {
	out := logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
	chatID, threadID, ok, err := c.LogChat()
	if c.Logging.Telegram.Enabled && ok && err == nil {
		if c.Logging.Telegram.ThreadID != 0 {
			threadID = c.Logging.Telegram.ThreadID
		}
		out.Telegram = logx.TelegramConfig{
			Enabled:    true,
			ChatID:     chatID,
			ThreadID:   threadID,
			MinLevel:   c.Logging.Telegram.MinLevel,
			RatePerSec: c.Logging.Telegram.RatePerSec,
		}
	}
	return out
}

func (c *Config) StorageConfig() (storage.Config, error) {
	busy, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	life, err := ParseDurationField("storage.conn_max_lifetime", c.Storage.ConnMaxLifetime)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Storage.Driver)),
		Path:            strings.TrimSpace(c.Storage.Path),
		DSN:             strings.TrimSpace(c.Storage.DSN),
		BusyTimeout:     busy,
		MaxOpenConns:    c.Storage.MaxOpenConns,
		MaxIdleConns:    c.Storage.MaxIdleConns,
		ConnMaxLifetime: life,
	}, nil
}

// Location resolves reminders.timezone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Reminders.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}

// Durations holds the resolved duration fields with defaults applied.
type Durations struct {
	PollTimeout     time.Duration
	SendTimeout     time.Duration
	DeliveryTimeout time.Duration
	Retention       time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) Durations() (Durations, error) {
	var d Durations
	var err error
	if d.PollTimeout, err = ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second); err != nil {
		return d, err
	}
	if d.SendTimeout, err = ParseDurationOrDefault("telegram.send_timeout", c.Telegram.SendTimeout, 15*time.Second); err != nil {
		return d, err
	}
	if d.DeliveryTimeout, err = ParseDurationOrDefault("reminders.delivery_timeout", c.Reminders.DeliveryTimeout, 15*time.Second); err != nil {
		return d, err
	}
	// 0 disables pruning.
	if d.Retention, err = ParseDurationField("reminders.retention", c.Reminders.Retention); err != nil {
		return d, err
	}
	if d.ShutdownTimeout, err = ParseDurationOrDefault("reminders.shutdown_timeout", c.Reminders.ShutdownTimeout, 10*time.Second); err != nil {
		return d, err
	}
	return d, nil
}

// ParseDurationField parses the duration at a config path. Empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	return parseDuration(path, raw, 0)
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return parseDuration(path, raw, def)
}

func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration like 30s or 5m", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: %s is negative", path, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}

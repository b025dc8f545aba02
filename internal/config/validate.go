package config

import (
	"errors"
	"fmt"
	"strings"

	"telepal/internal/reminder"
)

// Validate checks cfg without touching the network or the database.
// requireToken is false for offline commands such as migrate.
func Validate(cfg *Config, requireToken bool) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if requireToken && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set "+EnvToken+")"))
	}
	if _, _, _, err := cfg.LogChat(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("telegram.rate_per_sec must be >= 0"))
	}

	sc, err := cfg.StorageConfig()
	if err != nil {
		errs = append(errs, err)
	}
	switch sc.Driver {
	case "", "sqlite", "sqlite3":
		if sc.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case "postgres", "postgresql":
		if sc.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres (or set "+EnvStorageDSN+" / POSTGRES_HOST)"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if sc.MaxOpenConns < 0 || sc.MaxIdleConns < 0 {
		errs = append(errs, errors.New("storage connection limits must be >= 0"))
	}

	r := cfg.Reminders
	if r.RecoveryLimit < 0 {
		errs = append(errs, errors.New("reminders.recovery_limit must be >= 0"))
	}
	if _, err := cfg.Location(); err != nil {
		errs = append(errs, err)
	}
	if err := reminder.ValidateSpec(r.ResyncSpec); err != nil {
		errs = append(errs, fmt.Errorf("reminders.resync_spec: %w", err))
	}
	if err := reminder.ValidateSpec(r.PruneSpec); err != nil {
		errs = append(errs, fmt.Errorf("reminders.prune_spec: %w", err))
	}
	if _, err := cfg.Durations(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

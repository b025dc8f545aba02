package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "24h") and are resolved by the accessor methods.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the log chat as "chat_id" or "chat_id:thread_id".
	GroupLog    string  `json:"group_log"`
	PollTimeout string  `json:"poll_timeout"`
	SendTimeout string  `json:"send_timeout,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
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
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the task store.
//
//	"storage": { "driver": "sqlite", "path": "./telepal.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver          string `json:"driver"`
	Path            string `json:"path,omitempty"`
	DSN             string `json:"dsn,omitempty"`
	BusyTimeout     string `json:"busy_timeout,omitempty"`
	MaxOpenConns    int    `json:"max_open_conns,omitempty"`
	MaxIdleConns    int    `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime string `json:"conn_max_lifetime,omitempty"`
}

type RemindersConfig struct {
	RecoveryLimit   int    `json:"recovery_limit,omitempty"`
	DeliveryTimeout string `json:"delivery_timeout,omitempty"`
	// Timezone is the IANA zone for /remind HH:MM, listings and cron jobs.
	Timezone        string `json:"timezone,omitempty"`
	ResyncSpec      string `json:"resync_spec,omitempty"`
	PruneSpec       string `json:"prune_spec,omitempty"`
	Retention       string `json:"retention,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

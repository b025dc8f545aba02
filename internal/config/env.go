package config

import (
	"errors"
	"io/fs"
	"net"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvToken      = "TELEGRAM_BOT_TOKEN"
	EnvStorageDSN = "TELEPAL_STORAGE_DSN"
	EnvLogLevel   = "LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment values onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(getenv(EnvStorageDSN)); v != "" {
		cfg.Storage.DSN = v
	}
	if strings.EqualFold(cfg.Storage.Driver, "postgres") && strings.TrimSpace(cfg.Storage.DSN) == "" {
		cfg.Storage.DSN = postgresDSNFromEnv(getenv)
	}
}

// postgresDSNFromEnv composes a DSN from POSTGRES_* variables. It returns
// "" when POSTGRES_HOST is unset.
func postgresDSNFromEnv(getenv func(string) string) string {
	host := strings.TrimSpace(getenv("POSTGRES_HOST"))
	if host == "" {
		return ""
	}
	port := strings.TrimSpace(getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + strings.TrimSpace(getenv("POSTGRES_DB")),
	}
	if user := strings.TrimSpace(getenv("POSTGRES_USER")); user != "" {
		if pw := getenv("POSTGRES_PASSWORD"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	if mode := strings.TrimSpace(getenv("POSTGRES_SSLMODE")); mode != "" {
		q.Set("sslmode", mode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

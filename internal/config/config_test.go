package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func envMap(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

const sampleYAML = `
telegram:
  token: "file-token"
  owner_user_ids: [1, 2]
  group_log: "-1001:7"
  poll_timeout: 20s
logging:
  level: debug
  console: true
  file: { enabled: false, path: "" }
  telegram: { enabled: true, thread_id: 0, min_level: warn, rate_per_sec: 1 }
storage:
  driver: sqlite
  path: ./data/telepal.db
  busy_timeout: 5s
reminders:
  recovery_limit: 500
  timezone: Asia/Shanghai
  resync_spec: "@every 5m"
  prune_spec: "30 3 * * *"
  retention: 720h
`

func TestParseYAMLWithEnvOverlay(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	m := NewConfigManager(p)
	m.SetEnv(envMap(map[string]string{EnvToken: "env-token", EnvLogLevel: "warn"}))

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" || cfg.Logging.Level != "warn" {
		t.Fatalf("env overlay not applied: token=%q level=%q", cfg.Telegram.Token, cfg.Logging.Level)
	}
	if err := Validate(cfg, true); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	lc := cfg.LogConfig()
	if !lc.Telegram.Enabled || lc.Telegram.ChatID != -1001 || lc.Telegram.ThreadID != 7 {
		t.Fatalf("log chat = %+v", lc.Telegram)
	}
	sc, err := cfg.StorageConfig()
	if err != nil || sc.BusyTimeout != 5*time.Second || sc.Path != "./data/telepal.db" {
		t.Fatalf("storage = %+v, %v", sc, err)
	}
	d, err := cfg.Durations()
	if err != nil || d.PollTimeout != 20*time.Second || d.Retention != 720*time.Hour || d.DeliveryTimeout != 15*time.Second {
		t.Fatalf("durations = %+v, %v", d, err)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"bad.json": `{"telegram": {"token": "x", "pollTimeout": "1s"}}`,
		"bad.yaml": "storage:\n  driver: sqlite\n  filename: x.db\n",
		"two.json": `{} {}`,
	} {
		if _, err := NewConfigManager(writeFile(t, dir, name, body)).Parse(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDefaultsAndPostgresDSN(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	m := NewConfigManager(writeFile(t, dir, "min.json", `{"telegram": {"token": "t"}}`))
	m.SetEnv(envMap(nil))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != DefaultSQLitePath || cfg.Logging.Level != "info" {
		t.Fatalf("defaults = %+v %+v", cfg.Storage, cfg.Logging)
	}

	m = NewConfigManager(writeFile(t, dir, "pg.json", `{"storage": {"driver": "postgres"}}`))
	m.SetEnv(envMap(map[string]string{
		"POSTGRES_HOST":     "db",
		"POSTGRES_DB":       "telepal",
		"POSTGRES_USER":     "bot",
		"POSTGRES_PASSWORD": "p@ss",
	}))
	cfg, err = m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "postgres://bot:p%40ss@db:5432/telepal?sslmode=disable"
	if cfg.Storage.DSN != want {
		t.Fatalf("DSN = %q, want %q", cfg.Storage.DSN, want)
	}

	m.SetEnv(envMap(map[string]string{EnvStorageDSN: "postgres://explicit/db"}))
	cfg, _ = m.Parse()
	if cfg.Storage.DSN != "postgres://explicit/db" {
		t.Fatalf("DSN = %q", cfg.Storage.DSN)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t"},
			Storage:  StorageConfig{Driver: "sqlite", Path: "x.db"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown driver"},
		{"sqlite path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"recovery", func(c *Config) { c.Reminders.RecoveryLimit = -1 }, "recovery_limit"},
		{"cron", func(c *Config) { c.Reminders.PruneSpec = "every day" }, "prune_spec"},
		{"tz", func(c *Config) { c.Reminders.Timezone = "Mars/Base" }, "timezone"},
		{"duration", func(c *Config) { c.Reminders.Retention = "forever" }, "reminders.retention"},
		{"group log", func(c *Config) { c.Telegram.GroupLog = "abc" }, "group_log"},
	}
	if err := Validate(base(), true); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tt := range tests {
		c := base()
		tt.mutate(c)
		err := Validate(c, true)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}

	c := base()
	c.Telegram.Token = ""
	if err := Validate(c, false); err != nil {
		t.Fatalf("offline validate: %v", err)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	a := &Config{Logging: LoggingConfig{Level: "info"}, Telegram: TelegramConfig{Token: "a"}}
	b := *a
	if !Summarize(a, &b).Empty() {
		t.Fatal("identical configs should be empty")
	}
	b.Logging.Level = "debug"
	b.Telegram.Token = "b"
	ch := Summarize(a, &b)
	if len(ch.Applied) != 1 || ch.Applied[0] != "logging" {
		t.Fatalf("applied = %v", ch.Applied)
	}
	if len(ch.Restart) != 1 || ch.Restart[0] != "telegram" {
		t.Fatalf("restart = %v", ch.Restart)
	}
}

func TestReloadDedupesAndValidates(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"logging": {"level": "info"}}`)
	m := NewConfigManager(p)
	m.SetEnv(envMap(nil))
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	if ok, err := m.reload(context.Background()); ok || err != nil {
		t.Fatalf("unchanged reload = %v, %v", ok, err)
	}

	writeFile(t, filepath.Dir(p), "config.json", `{"logging": {"level": "debug"}}`)
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return Validate(cfg, true) })
	if ok, err := m.reload(context.Background()); ok || err == nil {
		t.Fatal("invalid config must be rejected")
	}
	if m.Get().Logging.Level != "info" {
		t.Fatal("rejected config must not be committed")
	}

	m.SetValidator(nil)
	if ok, err := m.reload(context.Background()); !ok || err != nil {
		t.Fatalf("reload = %v, %v", ok, err)
	}
	if got := <-sub; got.Logging.Level != "debug" {
		t.Fatalf("published level = %q", got.Logging.Level)
	}
}

func TestWatchPublishesChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"logging": {"level": "info"}}`)
	m := NewConfigManager(p)
	m.SetEnv(envMap(nil))
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Each write restarts the reload debounce, so rewrite only after a quiet
	// spell longer than it, in case the first write beat the watcher.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var lastWrite time.Time
	for {
		select {
		case got := <-sub:
			if got.Logging.Level != "error" {
				t.Fatalf("level = %q", got.Logging.Level)
			}
			return
		case <-tick.C:
			if time.Since(lastWrite) < 2*reloadDebounce {
				continue
			}
			writeFile(t, dir, "config.json", `{"logging": {"level": "error"}}`)
			lastWrite = time.Now()
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative should fail")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("garbage should fail")
	}
	if d, err := ParseDurationOrDefault("x", "0s", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("zero = %v, %v; want default", d, err)
	}
	if d, err := ParseDurationField("reminders.retention", " 720h "); err != nil || d != 720*time.Hour {
		t.Fatalf("retention = %v, %v", d, err)
	}
	_, err := ParseDurationField("telegram.poll_timeout", "10")
	if err == nil || !strings.Contains(err.Error(), "telegram.poll_timeout") {
		t.Fatalf("err = %v, want config path in message", err)
	}
}

func TestLoadDotEnvIgnoresMissing(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	p := writeFile(t, t.TempDir(), "test.env", "TELEPAL_TEST_DOTENV=from-file\n")
	t.Setenv("TELEPAL_TEST_DOTENV", "")
	os.Unsetenv("TELEPAL_TEST_DOTENV")
	if err := LoadDotEnv(p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("TELEPAL_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("env = %q", got)
	}
}

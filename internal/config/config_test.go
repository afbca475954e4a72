package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRuntimeConfigDefaults(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	if cfg.SyncTimeout != 30*time.Second || cfg.RealtimeDebounce != 300*time.Millisecond {
		t.Fatalf("unexpected sync defaults: %+v", cfg)
	}
	if cfg.SelfEchoCooldown != time.Second || cfg.SchedulerBuffer != 64 {
		t.Fatalf("unexpected runtime defaults: %+v", cfg)
	}
	if filepath.Base(cfg.DBPath) != "cronos.db" || cfg.RemoteEnabled() {
		t.Fatalf("unexpected storage defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestRuntimeConfigFromEnv(t *testing.T) {
	t.Setenv("CRONOS_DESKTOP_NOTIFICATIONS", "true")
	t.Setenv("CRONOS_SCHEDULER_BUFFER", "128")
	t.Setenv("CRONOS_SYNC_TIMEOUT", "10s")
	t.Setenv("CRONOS_REALTIME_DEBOUNCE", "garbage")
	t.Setenv("CRONOS_DB_PATH", "state/custom.db")
	t.Setenv("CRONOS_REMOTE_DSN", "postgres://localhost/cronos")
	t.Setenv("CRONOS_USER_ID", "user-1")

	cfg := RuntimeConfigFromEnv(DefaultRuntimeConfig())
	if !cfg.DesktopNotifications {
		t.Fatal("expected desktop notifications true from env")
	}
	if cfg.SchedulerBuffer != 128 || cfg.SyncTimeout != 10*time.Second {
		t.Fatalf("unexpected config overrides: %+v", cfg)
	}
	if cfg.RealtimeDebounce != 300*time.Millisecond {
		t.Fatalf("unparseable override must be ignored: %+v", cfg)
	}
	if cfg.DBPath != "state/custom.db" || !cfg.RemoteEnabled() {
		t.Fatalf("unexpected storage overrides: %+v", cfg)
	}
}

func TestFromFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "db_path: /tmp/x.db\nuser_id: alice\nsync_interval: 1m\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := FromFile(path, DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("from file: %v", err)
	}
	if cfg.DBPath != "/tmp/x.db" || cfg.UserID != "alice" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected file values: %+v", cfg)
	}
	if cfg.SyncInterval != time.Minute {
		t.Fatalf("sync interval = %s, want 1m", cfg.SyncInterval)
	}
	if cfg.SchedulerBuffer != 64 {
		t.Fatalf("keys absent from the file must keep defaults: %+v", cfg)
	}
}

func TestFromFileMissingAndBroken(t *testing.T) {
	dir := t.TempDir()
	base := DefaultRuntimeConfig()
	cfg, err := FromFile(filepath.Join(dir, "absent.yaml"), base)
	if err != nil || cfg != base {
		t.Fatalf("missing file should yield base, got %+v, %v", cfg, err)
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("db_path: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := FromFile(broken, base); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadAppliesEnvAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scheduler_buffer: 16\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CRONOS_SCHEDULER_BUFFER", "32")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SchedulerBuffer != 32 {
		t.Fatalf("env must win over file, got %d", cfg.SchedulerBuffer)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CRONOS_USER_ID=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("CRONOS_USER_ID", "from-shell")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("CRONOS_USER_ID"); got != "from-shell" {
		t.Fatalf("CRONOS_USER_ID = %q, want from-shell", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []func(*RuntimeConfig){
		func(c *RuntimeConfig) { c.DBPath = " " },
		func(c *RuntimeConfig) { c.LogLevel = "loud" },
		func(c *RuntimeConfig) { c.SchedulerBuffer = 0 },
		func(c *RuntimeConfig) { c.SyncTimeout = 0 },
	}
	for i, mutate := range cases {
		cfg := DefaultRuntimeConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid value")

type RuntimeConfig struct {
	DBPath               string        `yaml:"db_path"`
	RemoteDSN            string        `yaml:"remote_dsn"`
	UserID               string        `yaml:"user_id"`
	LogLevel             string        `yaml:"log_level"`
	LogFile              string        `yaml:"log_file"`
	SyncInterval         time.Duration `yaml:"sync_interval"`
	SyncTimeout          time.Duration `yaml:"sync_timeout"`
	RealtimeDebounce     time.Duration `yaml:"realtime_debounce"`
	SelfEchoCooldown     time.Duration `yaml:"self_echo_cooldown"`
	DesktopNotifications bool          `yaml:"desktop_notifications"`
	SchedulerBuffer      int           `yaml:"scheduler_buffer"`
}

// Dir is where cronos keeps its database and config file.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".cronos"
	}
	return filepath.Join(home, ".cronos")
}

func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		DBPath:               filepath.Join(Dir(), "cronos.db"),
		LogLevel:             "info",
		SyncInterval:         5 * time.Minute,
		SyncTimeout:          30 * time.Second,
		RealtimeDebounce:     300 * time.Millisecond,
		SelfEchoCooldown:     time.Second,
		DesktopNotifications: false,
		SchedulerBuffer:      64,
	}
}

// Load builds the effective config: defaults, then the YAML file at path,
// then CRONOS_* variables from the environment and ./.env. An empty path
// means CRONOS_CONFIG or DefaultPath. A missing file is not an error.
func Load(path string) (RuntimeConfig, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return RuntimeConfig{}, err
	}
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CRONOS_CONFIG"))
	}
	if path == "" {
		path = DefaultPath()
	}
	cfg, err := FromFile(path, DefaultRuntimeConfig())
	if err != nil {
		return RuntimeConfig{}, err
	}
	cfg = RuntimeConfigFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// FromFile overlays the YAML file at path onto base. Keys missing from the
// file keep base's values.
func FromFile(path string, base RuntimeConfig) (RuntimeConfig, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func RuntimeConfigFromEnv(base RuntimeConfig) RuntimeConfig {
	cfg := base
	if v, ok := getEnvString("CRONOS_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := getEnvString("CRONOS_REMOTE_DSN"); ok {
		cfg.RemoteDSN = v
	}
	if v, ok := getEnvString("CRONOS_USER_ID"); ok {
		cfg.UserID = v
	}
	if v, ok := getEnvString("CRONOS_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := getEnvString("CRONOS_LOG_FILE"); ok {
		cfg.LogFile = v
	}
	if v, ok := getEnvDuration("CRONOS_SYNC_INTERVAL"); ok && v >= 0 {
		cfg.SyncInterval = v
	}
	if v, ok := getEnvDuration("CRONOS_SYNC_TIMEOUT"); ok && v > 0 {
		cfg.SyncTimeout = v
	}
	if v, ok := getEnvDuration("CRONOS_REALTIME_DEBOUNCE"); ok && v > 0 {
		cfg.RealtimeDebounce = v
	}
	if v, ok := getEnvDuration("CRONOS_SELF_ECHO_COOLDOWN"); ok && v >= 0 {
		cfg.SelfEchoCooldown = v
	}
	if v, ok := getEnvBool("CRONOS_DESKTOP_NOTIFICATIONS"); ok {
		cfg.DesktopNotifications = v
	}
	if v, ok := getEnvInt("CRONOS_SCHEDULER_BUFFER"); ok && v > 0 {
		cfg.SchedulerBuffer = v
	}
	return cfg
}

func (c RuntimeConfig) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: db_path is empty", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.SchedulerBuffer <= 0 {
		return fmt.Errorf("%w: scheduler_buffer must be positive", ErrInvalidConfig)
	}
	if c.SyncInterval < 0 || c.SyncTimeout <= 0 || c.RealtimeDebounce <= 0 || c.SelfEchoCooldown < 0 {
		return fmt.Errorf("%w: sync durations out of range", ErrInvalidConfig)
	}
	return nil
}

// RemoteEnabled reports whether both a DSN and a user are configured.
func (c RuntimeConfig) RemoteEnabled() bool {
	return strings.TrimSpace(c.RemoteDSN) != "" && strings.TrimSpace(c.UserID) != ""
}

func getEnvString(name string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	return raw, raw != ""
}

func getEnvInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvDuration(name string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvBool(name string) (bool, bool) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return false, false
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

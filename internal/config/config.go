// Package config handles reading and writing the console's config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for config.yaml.
type Config struct {
	Version       int                 `yaml:"version"`
	LogLevel      string              `yaml:"log_level"`
	Center        CenterConfig        `yaml:"center"`
	Project       ProjectConfig       `yaml:"project"`
	Backend       BackendConfig       `yaml:"backend"`
	Polling       PollingConfig       `yaml:"polling"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Terminal      TerminalConfig      `yaml:"terminal"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// CenterConfig points at the governance service.
type CenterConfig struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// Timeout returns the per-request fetch timeout.
func (c CenterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ProjectConfig holds the local project used for fallback reads.
type ProjectConfig struct {
	Root string `yaml:"root"`
}

// BackendConfig selects where session processes live.
type BackendConfig struct {
	Mode      string `yaml:"mode"` // "daemon" | "embedded"
	Socket    string `yaml:"socket"`
	Autostart bool   `yaml:"autostart"`
}

// Backend modes.
const (
	BackendDaemon   = "daemon"
	BackendEmbedded = "embedded"
)

// PollingConfig holds the periodic timer intervals.
type PollingConfig struct {
	NotifyIntervalMS   int `yaml:"notify_interval_ms"`
	SnapshotIntervalMS int `yaml:"snapshot_interval_ms"`
	UptimeIntervalMS   int `yaml:"uptime_interval_ms"`
	WatchIntervalMS    int `yaml:"watch_interval_ms"`
}

func (p PollingConfig) NotifyInterval() time.Duration {
	return time.Duration(p.NotifyIntervalMS) * time.Millisecond
}

func (p PollingConfig) SnapshotInterval() time.Duration {
	return time.Duration(p.SnapshotIntervalMS) * time.Millisecond
}

func (p PollingConfig) UptimeInterval() time.Duration {
	return time.Duration(p.UptimeIntervalMS) * time.Millisecond
}

func (p PollingConfig) WatchInterval() time.Duration {
	return time.Duration(p.WatchIntervalMS) * time.Millisecond
}

// NotificationsConfig controls alert delivery.
type NotificationsConfig struct {
	Desktop        bool `yaml:"desktop"`
	ToastDismissMS int  `yaml:"toast_dismiss_ms"`
	RatePerMinute  int  `yaml:"rate_per_minute"`
}

// TerminalConfig sizes new channels.
type TerminalConfig struct {
	Cols            int `yaml:"cols"`
	Rows            int `yaml:"rows"`
	ScrollbackBytes int `yaml:"scrollback_bytes"`
}

// MetricsConfig exposes Prometheus metrics. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

const (
	configFile = "config.yaml"
	// HomeEnv overrides the console directory.
	HomeEnv = "ADT_CONSOLE_HOME"
	// CenterURLEnv overrides center.url.
	CenterURLEnv = "ADT_CENTER_URL"
	// ProjectRootEnv overrides project.root.
	ProjectRootEnv = "ADT_PROJECT_ROOT"
)

// Dir returns the console directory, ~/.adt/console unless ADT_CONSOLE_HOME
// is set.
func Dir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".adt", "console"), nil
}

// ReadConfig reads config.yaml from dir.
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// WriteConfig writes cfg to config.yaml in dir, creating dir if needed.
func WriteConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, configFile), data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Load reads config.yaml from dir, falling back to defaults when the file
// does not exist, then applies environment overrides.
func Load(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}
	if v := os.Getenv(CenterURLEnv); v != "" {
		cfg.Center.URL = v
	}
	if v := os.Getenv(ProjectRootEnv); v != "" {
		cfg.Project.Root = v
	}
	return cfg, nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		LogLevel: "info",
		Center: CenterConfig{
			URL:       "http://localhost:5001",
			TimeoutMS: 3000,
		},
		Backend: BackendConfig{
			Mode:      BackendDaemon,
			Autostart: true,
		},
		Polling: PollingConfig{
			NotifyIntervalMS:   5000,
			SnapshotIntervalMS: 10000,
			UptimeIntervalMS:   30000,
			WatchIntervalMS:    2000,
		},
		Notifications: NotificationsConfig{
			Desktop:        true,
			ToastDismissMS: 5000,
			RatePerMinute:  30,
		},
		Terminal: TerminalConfig{
			Cols:            120,
			Rows:            30,
			ScrollbackBytes: 1 << 20,
		},
	}
}

type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringField(p func(c *Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func intField(p func(c *Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("want a non-negative integer, got %q", v)
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(p func(c *Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("want true or false, got %q", v)
			}
			*p(c) = b
			return nil
		},
	}
}

var fields = map[string]field{
	"log_level":                      stringField(func(c *Config) *string { return &c.LogLevel }),
	"center.url":                     stringField(func(c *Config) *string { return &c.Center.URL }),
	"center.timeout_ms":              intField(func(c *Config) *int { return &c.Center.TimeoutMS }),
	"project.root":                   stringField(func(c *Config) *string { return &c.Project.Root }),
	"backend.mode":                   stringField(func(c *Config) *string { return &c.Backend.Mode }),
	"backend.socket":                 stringField(func(c *Config) *string { return &c.Backend.Socket }),
	"backend.autostart":              boolField(func(c *Config) *bool { return &c.Backend.Autostart }),
	"polling.notify_interval_ms":     intField(func(c *Config) *int { return &c.Polling.NotifyIntervalMS }),
	"polling.snapshot_interval_ms":   intField(func(c *Config) *int { return &c.Polling.SnapshotIntervalMS }),
	"polling.uptime_interval_ms":     intField(func(c *Config) *int { return &c.Polling.UptimeIntervalMS }),
	"polling.watch_interval_ms":      intField(func(c *Config) *int { return &c.Polling.WatchIntervalMS }),
	"notifications.desktop":          boolField(func(c *Config) *bool { return &c.Notifications.Desktop }),
	"notifications.toast_dismiss_ms": intField(func(c *Config) *int { return &c.Notifications.ToastDismissMS }),
	"notifications.rate_per_minute":  intField(func(c *Config) *int { return &c.Notifications.RatePerMinute }),
	"terminal.cols":                  intField(func(c *Config) *int { return &c.Terminal.Cols }),
	"terminal.rows":                  intField(func(c *Config) *int { return &c.Terminal.Rows }),
	"terminal.scrollback_bytes":      intField(func(c *Config) *int { return &c.Terminal.ScrollbackBytes }),
	"metrics.addr":                   stringField(func(c *Config) *string { return &c.Metrics.Addr }),
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted key.
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return f.get(c), nil
}

// Set assigns value to a dotted key such as center.url.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	if key == "backend.mode" && value != BackendDaemon && value != BackendEmbedded {
		return fmt.Errorf("backend.mode: want %s or %s, got %q", BackendDaemon, BackendEmbedded, value)
	}
	if err := f.set(c, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// SocketPath returns the daemon socket, defaulting to backend.sock in dir.
func (c *Config) SocketPath(dir string) string {
	if c.Backend.Socket != "" {
		return c.Backend.Socket
	}
	return filepath.Join(dir, "backend.sock")
}

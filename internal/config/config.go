// Package config loads pane-mirror configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (PANE_MIRROR_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .pane-mirror.yaml in current directory
//  2. ~/.config/pane-mirror/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pane-mirror configuration.
type Config struct {
	// Mirror settings
	Root       string `yaml:"root"`       // output directory for the mirror tree
	Scrollback int    `yaml:"scrollback"` // lines of history captured above the visible area
	Interval   string `yaml:"interval"`   // Go duration string, e.g. "500ms"
	Mux        string `yaml:"mux"`        // multiplexer name; empty auto-detects

	// ExcludeSessions lists session names to leave out of the mirror.
	// Exact names or prefix globs ("scratch-*"). Excluded sessions are
	// not written to, but their existing directories are not cleaned up
	// either; only sessions gone upstream are.
	ExcludeSessions []string `yaml:"exclude_sessions"`

	// Queue watcher. Debounce for filesystem wakeups; "0"/"off"/"disable"
	// turns the watcher off and the daemon polls on the interval alone.
	Watch string `yaml:"watch"`

	// Logging
	LogDir    string `yaml:"log_dir"`    // empty: <user cache dir>/pane-mirror
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text or json

	// Activity feed socket path. Empty uses the runtime-dir default;
	// "off" disables publishing.
	ActivitySocket string `yaml:"activity_socket"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed durations (not from YAML, set after loading)
	IntervalDuration time.Duration `yaml:"-"`
	WatchDebounce    time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Root:       "tmux",
		Scrollback: 500,
		Interval:   "500ms",
		Watch:      "100ms",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file path. An empty path
// falls back to the usual search order.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()

	data, found, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", found, err)
		}
		cfg.ConfigFile = found
		mergeFile(cfg, &fileCfg)
	}

	// Environment variables override everything
	mergeEnv(cfg)

	// Parse durations
	cfg.IntervalDuration, err = parseDurationOrDisable(cfg.Interval, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q: %w", cfg.Interval, err)
	}
	if cfg.IntervalDuration <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %q", cfg.Interval)
	}
	cfg.WatchDebounce, err = parseDurationOrDisable(cfg.Watch, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid watch debounce %q: %w", cfg.Watch, err)
	}
	if cfg.Scrollback < 0 {
		return nil, fmt.Errorf("scrollback must be non-negative, got %d", cfg.Scrollback)
	}

	return cfg, nil
}

// readConfigFile returns the config file contents. With an explicit
// path a read failure is an error; during search, missing files are
// skipped.
func readConfigFile(path string) ([]byte, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("reading config file %s: %w", path, err)
		}
		return data, path, nil
	}

	// 1. Current directory
	if data, err := os.ReadFile(".pane-mirror.yaml"); err == nil {
		return data, ".pane-mirror.yaml", nil
	}

	// 2. XDG config dir / ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "pane-mirror", "config.yaml")
		if data, err := os.ReadFile(p); err == nil {
			return data, p, nil
		}
	}

	return nil, "", nil
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Root != "" {
		cfg.Root = file.Root
	}
	if file.Scrollback > 0 {
		cfg.Scrollback = file.Scrollback
	}
	if file.Interval != "" {
		cfg.Interval = file.Interval
	}
	if file.Mux != "" {
		cfg.Mux = file.Mux
	}
	if len(file.ExcludeSessions) > 0 {
		cfg.ExcludeSessions = file.ExcludeSessions
	}
	if file.Watch != "" {
		cfg.Watch = file.Watch
	}
	if file.LogDir != "" {
		cfg.LogDir = file.LogDir
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.LogFormat != "" {
		cfg.LogFormat = file.LogFormat
	}
	if file.ActivitySocket != "" {
		cfg.ActivitySocket = file.ActivitySocket
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("PANE_MIRROR_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("PANE_MIRROR_SCROLLBACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scrollback = n
		}
	}
	if v := os.Getenv("PANE_MIRROR_INTERVAL"); v != "" {
		cfg.Interval = v
	}
	if v := os.Getenv("PANE_MIRROR_MUX"); v != "" {
		cfg.Mux = v
	}
	if v := os.Getenv("PANE_MIRROR_EXCLUDE_SESSIONS"); v != "" {
		cfg.ExcludeSessions = splitCommaList(v)
	}
	if v := os.Getenv("PANE_MIRROR_WATCH"); v != "" {
		cfg.Watch = v
	}
	if v := os.Getenv("PANE_MIRROR_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("PANE_MIRROR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PANE_MIRROR_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("PANE_MIRROR_ACTIVITY_SOCKET"); v != "" {
		cfg.ActivitySocket = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// splitCommaList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MatchesExcludeList reports whether name matches any pattern. A pattern
// ending in '*' matches as a prefix; anything else must match exactly.
func MatchesExcludeList(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(name, p[:len(p)-1]) {
				return true
			}
			continue
		}
		if name == p {
			return true
		}
	}
	return false
}

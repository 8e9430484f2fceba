// Package config handles configuration loading and validation for applock.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment override (APPLOCK_ENGINE_DEBOUNCE_WINDOW, ...).
const EnvPrefix = "APPLOCK"

// Config holds all application configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine" envconfig:"ENGINE"`
	Store   StoreConfig   `toml:"store" envconfig:"STORE"`
	Server  ServerConfig  `toml:"server" envconfig:"SERVER"`
	Desktop DesktopConfig `toml:"desktop" envconfig:"DESKTOP"`
	Log     LogConfig     `toml:"log" envconfig:"LOG"`
	Daemon  DaemonConfig  `toml:"daemon" envconfig:"DAEMON"`
}

// EngineConfig holds lock engine settings.
type EngineConfig struct {
	SelfPackage         string        `toml:"self_package" envconfig:"SELF_PACKAGE"`
	SettingsSurface     string        `toml:"settings_surface" envconfig:"SETTINGS_SURFACE"` // policy id: android, gnome, kde; empty follows desktop.backend
	SettingsPackage     string        `toml:"settings_package" envconfig:"SETTINGS_PACKAGE"` // overrides the policy's identifier
	ExtraMarkers        []string      `toml:"extra_markers" envconfig:"EXTRA_MARKERS"`
	DebounceWindow      time.Duration `toml:"debounce_window" envconfig:"DEBOUNCE_WINDOW"`
	PromptDelay         time.Duration `toml:"prompt_delay" envconfig:"PROMPT_DELAY"`
	SettingsRenderDelay time.Duration `toml:"settings_render_delay" envconfig:"SETTINGS_RENDER_DELAY"`
	ActionTimeout       time.Duration `toml:"action_timeout" envconfig:"ACTION_TIMEOUT"`
	MatchTimeout        time.Duration `toml:"match_timeout" envconfig:"MATCH_TIMEOUT"`
	MaxTreeDepth        int           `toml:"max_tree_depth" envconfig:"MAX_TREE_DEPTH"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	DataDir string `toml:"data_dir" envconfig:"DATA_DIR"`
}

// ServerConfig holds the control API settings.
type ServerConfig struct {
	Addr string `toml:"addr" envconfig:"ADDR"`
}

// DesktopConfig holds the desktop collaborator settings.
type DesktopConfig struct {
	Backend       string        `toml:"backend" envconfig:"BACKEND"` // x11 or none
	PollInterval  time.Duration `toml:"poll_interval" envconfig:"POLL_INTERVAL"`
	XpropPath     string        `toml:"xprop_path" envconfig:"XPROP_PATH"`
	HomeCommand   []string      `toml:"home_command" envconfig:"HOME_COMMAND"`
	Accessibility bool          `toml:"accessibility" envconfig:"ACCESSIBILITY"`
	ScreenSignals bool          `toml:"screen_signals" envconfig:"SCREEN_SIGNALS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LEVEL"`
	Development bool   `toml:"development" envconfig:"DEV"`
}

// DaemonConfig holds watcher/guardian intervals.
type DaemonConfig struct {
	HeartbeatInterval    time.Duration `toml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL"`
	PartnerCheckInterval time.Duration `toml:"partner_check_interval" envconfig:"PARTNER_CHECK_INTERVAL"`
	WatcherCheckInterval time.Duration `toml:"watcher_check_interval" envconfig:"WATCHER_CHECK_INTERVAL"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			SelfPackage:         "com.applock.secure",
			DebounceWindow:      800 * time.Millisecond,
			PromptDelay:         80 * time.Millisecond,
			SettingsRenderDelay: 150 * time.Millisecond,
			ActionTimeout:       2 * time.Second,
			MatchTimeout:        2 * time.Second,
			MaxTreeDepth:        64,
		},
		Store: StoreConfig{
			DataDir: DefaultDataDir(),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7787",
		},
		Desktop: DesktopConfig{
			Backend:       "x11",
			PollInterval:  250 * time.Millisecond,
			XpropPath:     "xprop",
			HomeCommand:   []string{"xdotool", "getactivewindow", "windowminimize"},
			Accessibility: true,
			ScreenSignals: true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Daemon: DaemonConfig{
			HeartbeatInterval:    30 * time.Second,
			PartnerCheckInterval: 60 * time.Second,
			WatcherCheckInterval: 30 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path (if
// path is non-empty), then APPLOCK_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads using the file named by APPLOCK_CONFIG, if any.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(EnvPrefix + "_CONFIG"))
}

// SettingsSurfaceID returns engine.settings_surface, or the surface that
// matches desktop.backend when it is unset: gnome under x11, android when
// foreground events arrive through the API.
func (c *Config) SettingsSurfaceID() string {
	if c.Engine.SettingsSurface != "" {
		return c.Engine.SettingsSurface
	}
	if c.Desktop.Backend == "x11" {
		return "gnome"
	}
	return "android"
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.SelfPackage == "" {
		errs = append(errs, errors.New("engine.self_package is required"))
	}
	for name, d := range map[string]time.Duration{
		"engine.debounce_window":        c.Engine.DebounceWindow,
		"engine.prompt_delay":           c.Engine.PromptDelay,
		"engine.settings_render_delay":  c.Engine.SettingsRenderDelay,
		"engine.action_timeout":         c.Engine.ActionTimeout,
		"engine.match_timeout":          c.Engine.MatchTimeout,
		"desktop.poll_interval":         c.Desktop.PollInterval,
		"daemon.heartbeat_interval":     c.Daemon.HeartbeatInterval,
		"daemon.partner_check_interval": c.Daemon.PartnerCheckInterval,
		"daemon.watcher_check_interval": c.Daemon.WatcherCheckInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Engine.PromptDelay >= c.Engine.DebounceWindow {
		errs = append(errs, fmt.Errorf("engine.prompt_delay (%s) must be shorter than engine.debounce_window (%s)",
			c.Engine.PromptDelay, c.Engine.DebounceWindow))
	}
	if c.Store.DataDir == "" {
		errs = append(errs, errors.New("store.data_dir is required"))
	}
	switch c.Desktop.Backend {
	case "x11", "none":
	default:
		errs = append(errs, fmt.Errorf("desktop.backend must be x11 or none, got %q", c.Desktop.Backend))
	}

	return errors.Join(errs...)
}

// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/xonecas/tally/internal/constants"
)

// Config is the root configuration structure.
type Config struct {
	API      APIConfig      `toml:"api"`
	Realtime RealtimeConfig `toml:"realtime"`
	UI       UIConfig       `toml:"ui"`
	Refresh  RefreshConfig  `toml:"refresh"`
}

// APIConfig holds settings for the command API.
type APIConfig struct {
	URLRoot   string  `toml:"url_root"`
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// RealtimeConfig holds the push channel settings.
type RealtimeConfig struct {
	AppKey  string `toml:"app_key"`
	Cluster string `toml:"cluster"`
	// Host overrides the websocket host derived from the cluster.
	Host string `toml:"host"`
}

// UIConfig holds terminal UI settings.
type UIConfig struct {
	ComposerMaxLines int    `toml:"composer_max_lines"`
	ShortcutModifier string `toml:"shortcut_modifier"`
	SmallScreenWidth int    `toml:"small_screen_width"`
	Notifications    bool   `toml:"notifications"`
}

// RefreshConfig controls background re-fetching.
type RefreshConfig struct {
	Interval     string `toml:"interval"`
	Reachability string `toml:"reachability"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			URLRoot:   "https://www.expensify.cash/",
			RateLimit: 5.0,
			RateBurst: 10,
		},
		Realtime: RealtimeConfig{
			AppKey:  "268df511a204fbb60884",
			Cluster: "mt1",
		},
		UI: UIConfig{
			ComposerMaxLines: constants.ComposerMaxLines,
			ShortcutModifier: "ctrl",
			SmallScreenWidth: constants.SmallScreenWidth,
			Notifications:    true,
		},
		Refresh: RefreshConfig{
			Interval:     constants.PersonalDetailsRefreshInterval.String(),
			Reachability: constants.ReachabilityCheckInterval.String(),
		},
	}
}

// Load reads configuration from a TOML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if !strings.HasSuffix(c.API.URLRoot, "/") {
		c.API.URLRoot += "/"
	}
	if _, err := time.ParseDuration(c.Refresh.Interval); err != nil {
		return fmt.Errorf("refresh.interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Refresh.Reachability); err != nil {
		return fmt.Errorf("refresh.reachability: %w", err)
	}
	switch c.UI.ShortcutModifier {
	case "ctrl", "alt":
	default:
		return fmt.Errorf("ui.shortcut_modifier: unsupported modifier %q", c.UI.ShortcutModifier)
	}
	return nil
}

// RefreshInterval returns the parsed personal details refresh interval.
func (c *Config) RefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.Refresh.Interval)
	if err != nil || d <= 0 {
		return constants.PersonalDetailsRefreshInterval
	}
	return d
}

// ReachabilityInterval returns the parsed reachability probe interval.
func (c *Config) ReachabilityInterval() time.Duration {
	d, err := time.ParseDuration(c.Refresh.Reachability)
	if err != nil || d <= 0 {
		return constants.ReachabilityCheckInterval
	}
	return d
}

// AuthEndpoint is the private channel authorization URL.
func (c *Config) AuthEndpoint() string {
	return c.API.URLRoot + "api?command=Push_Authenticate"
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TALLY_API_ROOT"); v != "" {
		cfg.API.URLRoot = v
	}

	if v := os.Getenv("TALLY_API_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.API.RateLimit = f
		}
	}

	if v := os.Getenv("TALLY_API_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.RateBurst = n
		}
	}

	if v := os.Getenv("TALLY_PUSHER_APP_KEY"); v != "" {
		cfg.Realtime.AppKey = v
	}

	if v := os.Getenv("TALLY_PUSHER_CLUSTER"); v != "" {
		cfg.Realtime.Cluster = v
	}

	if v := os.Getenv("TALLY_PUSHER_HOST"); v != "" {
		cfg.Realtime.Host = v
	}

	if v := os.Getenv("TALLY_REFRESH_INTERVAL"); v != "" {
		cfg.Refresh.Interval = v
	}

	if v := os.Getenv("TALLY_SHORTCUT_MODIFIER"); v != "" {
		cfg.UI.ShortcutModifier = v
	}

	if v := os.Getenv("TALLY_COMPOSER_MAX_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UI.ComposerMaxLines = n
		}
	}

	if v := os.Getenv("TALLY_NOTIFICATIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UI.Notifications = b
		}
	}
}

// DataDir returns the path to the Tally data directory (~/.tally).
// TALLY_HOME overrides it.
func DataDir() (string, error) {
	if v := os.Getenv("TALLY_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tally"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

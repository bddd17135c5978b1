package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lugia19/claude-counter/internal/locator"
	"github.com/lugia19/claude-counter/internal/scrape"
	"github.com/lugia19/claude-counter/internal/store"
	"github.com/lugia19/claude-counter/internal/usage"

	"github.com/BurntSushi/toml"
)

// Config holds all claude-counter configuration.
type Config struct {
	Estimator  EstimatorConfig  `toml:"estimator"`
	Locator    LocatorConfig    `toml:"locator"`
	Browser    BrowserConfig    `toml:"browser"`
	Limits     LimitsConfig     `toml:"limits"`
	Export     ExportConfig     `toml:"export"`
	Appearance AppearanceConfig `toml:"appearance"`
	Store      StoreConfig      `toml:"store"`
	// Selectors overrides individual page selectors; empty fields keep
	// the built-in values.
	Selectors scrape.Selectors `toml:"selectors"`
}

// EstimatorConfig holds counting pass timing.
type EstimatorConfig struct {
	PollInterval       time.Duration `toml:"poll_interval"`
	SettleDelay        time.Duration `toml:"settle_delay"`
	NewChatSettleDelay time.Duration `toml:"new_chat_settle_delay"`
	SidebarSettle      time.Duration `toml:"sidebar_settle"`
}

// LocatorConfig bounds waits for page elements.
type LocatorConfig struct {
	Attempts int           `toml:"attempts"`
	Interval time.Duration `toml:"interval"`
}

// BrowserConfig selects the browser to attach to.
type BrowserConfig struct {
	// CDPURL is the DevTools endpoint of a running browser. Empty launches one.
	CDPURL   string `toml:"cdp_url,omitempty"`
	Host     string `toml:"host"`
	Headless bool   `toml:"headless"`
}

// LimitsConfig holds per-model token ceilings.
type LimitsConfig struct {
	Default          int64            `toml:"default"`
	WarningThreshold float64          `toml:"warning_threshold"`
	Models           map[string]int64 `toml:"models"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	Prefix string `toml:"prefix"`
	Dir    string `toml:"dir,omitempty"`
	Format string `toml:"format,omitempty"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// StoreConfig locates the key/value database.
type StoreConfig struct {
	Path string `toml:"path,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	limits := usage.DefaultLimits()
	return Config{
		Estimator: EstimatorConfig{
			PollInterval:       time.Second,
			SettleDelay:        100 * time.Millisecond,
			NewChatSettleDelay: 5 * time.Second,
			SidebarSettle:      scrape.DefaultSidebarSettle,
		},
		Locator: LocatorConfig{
			Attempts: locator.DefaultAttempts,
			Interval: locator.DefaultInterval,
		},
		Browser: BrowserConfig{
			Host: "claude.ai",
		},
		Limits: LimitsConfig{
			Default:          limits.Default,
			WarningThreshold: limits.WarningThreshold,
			Models:           limits.Models,
		},
		Export: ExportConfig{
			Prefix: "Claude_export",
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "claude-counter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-counter")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path over the defaults.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is the user's own config file
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes the config to path.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // path is the user's own config file
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// GetCDPURL returns the DevTools endpoint from env var or config, in that order.
func GetCDPURL(cfg Config) string {
	if u := os.Getenv("CLAUDE_COUNTER_CDP_URL"); u != "" {
		return u
	}
	return cfg.Browser.CDPURL
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// UsageLimits converts the limits section.
func (c Config) UsageLimits() usage.Limits {
	return usage.Limits{
		Models:           c.Limits.Models,
		Default:          c.Limits.Default,
		WarningThreshold: c.Limits.WarningThreshold,
	}
}

// LocatorPolicy converts the locator section.
func (c Config) LocatorPolicy() locator.Policy {
	return locator.Policy{Attempts: c.Locator.Attempts, Interval: c.Locator.Interval}
}

// PageSelectors returns the configured selectors over the built-in ones.
func (c Config) PageSelectors() scrape.Selectors {
	return c.Selectors.Merge(scrape.DefaultSelectors())
}

// StorePath returns the configured database path or the default one.
func (c Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return store.DefaultPath()
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultConfig()
	if cfg.Estimator != def.Estimator || cfg.Locator != def.Locator || cfg.Browser != def.Browser {
		t.Errorf("LoadFrom(missing) = %+v, want defaults", cfg)
	}
	if cfg.Limits.Models["3 Opus"] != 1_500_000 {
		t.Errorf("default model limits missing: %v", cfg.Limits.Models)
	}
}

func TestLoadFromPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[estimator]
settle_delay = "250ms"

[limits]
warning_threshold = 0.75

[limits.models]
"4 Opus" = 1000000

[selectors]
user_message = ".me"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Estimator.SettleDelay != 250*time.Millisecond {
		t.Errorf("SettleDelay = %v", cfg.Estimator.SettleDelay)
	}
	if cfg.Estimator.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want default", cfg.Estimator.PollInterval)
	}

	limits := cfg.UsageLimits()
	if limits.WarningThreshold != 0.75 || limits.For("4 Opus") != 1_000_000 || limits.For("3 Opus") != 1_500_000 {
		t.Errorf("limits = %+v", limits)
	}

	sel := cfg.PageSelectors()
	if sel.UserMessage != ".me" || sel.AssistantMessage == "" {
		t.Errorf("selectors = %q / %q", sel.UserMessage, sel.AssistantMessage)
	}
}

func TestLoadFromInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[estimator\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom(invalid) returned nil error")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.Locator.Attempts = 9
	cfg.Export.Dir = "/tmp/exports"
	cfg.Browser.Headless = true

	if err := SaveTo(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Locator != cfg.Locator || got.Export != cfg.Export || got.Browser != cfg.Browser || got.Estimator != cfg.Estimator {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestGetCDPURLPrefersEnv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Browser.CDPURL = "ws://from-config"

	t.Setenv("CLAUDE_COUNTER_CDP_URL", "")
	if got := GetCDPURL(cfg); got != "ws://from-config" {
		t.Errorf("GetCDPURL = %q", got)
	}
	t.Setenv("CLAUDE_COUNTER_CDP_URL", "ws://from-env")
	if got := GetCDPURL(cfg); got != "ws://from-env" {
		t.Errorf("GetCDPURL = %q, want env value", got)
	}
}

func TestConfigPathHonorsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if got, want := ConfigPath(), filepath.Join(dir, "claude-counter", "config.toml"); got != want {
		t.Errorf("ConfigPath = %q, want %q", got, want)
	}
	if Exists() {
		t.Error("Exists = true before saving")
	}
	if err := Save(DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	if !Exists() {
		t.Error("Exists = false after saving")
	}
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Path = "/tmp/x.db"
	if cfg.StorePath() != "/tmp/x.db" {
		t.Errorf("StorePath = %q", cfg.StorePath())
	}
	t.Setenv("XDG_DATA_HOME", "/data")
	cfg.Store.Path = ""
	if got := cfg.StorePath(); got != "/data/claude-counter/counter.db" {
		t.Errorf("default StorePath = %q", got)
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveTo(path, DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c Config) { got <- c }, nil)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	cfg := DefaultConfig()
	cfg.Limits.WarningThreshold = 0.5
	if err := SaveTo(path, cfg); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Limits.WarningThreshold != 0.5 {
			t.Errorf("reloaded threshold = %v, want 0.5", c.Limits.WarningThreshold)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch = %v", err)
	}
}

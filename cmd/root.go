// Package cmd implements the claude-counter CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/lugia19/claude-counter/internal/config"
	"github.com/lugia19/claude-counter/internal/estimator"
	"github.com/lugia19/claude-counter/internal/page"
	"github.com/lugia19/claude-counter/internal/page/cdp"
	"github.com/lugia19/claude-counter/internal/page/html"
	"github.com/lugia19/claude-counter/internal/scrape"
	"github.com/lugia19/claude-counter/internal/store"
	"github.com/lugia19/claude-counter/internal/usage"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagStore   string
	flagCDPURL  string
	flagVerbose bool
	flagQuiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "claude-counter",
	Short: "Estimate claude.ai token usage from the open chat tab",
	Long: "Watch a claude.ai tab over the DevTools protocol, estimate the tokens each\n" +
		"message and attachment costs, and track them against per-model usage windows.",
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogging()
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "Usage database path")
	rootCmd.PersistentFlags().StringVar(&flagCDPURL, "cdp-url", "", "DevTools endpoint of a running browser, e.g. ws://127.0.0.1:9222")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log diagnostics to stderr")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

func setupLogging() {
	log.SetPrefix("claude-counter: ")
	log.SetFlags(log.LstdFlags)
	if flagVerbose {
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(io.Discard)
}

func progressf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// configPath returns the file the config was (or would be) read from.
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.ConfigPath()
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFrom(configPath())
	if err != nil {
		return cfg, err
	}
	if flagStore != "" {
		cfg.Store.Path = flagStore
	}
	if flagCDPURL != "" {
		cfg.Browser.CDPURL = flagCDPURL
	} else {
		cfg.Browser.CDPURL = config.GetCDPURL(cfg)
	}
	return cfg, nil
}

func openStore(cfg config.Config) (*store.SQLite, error) {
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("opening usage store: %w", err)
	}
	return st, nil
}

// attach connects to the browser tab configured in cfg.
func attach(ctx context.Context, cfg config.Config) (*cdp.Page, error) {
	sel := cfg.PageSelectors()
	if cfg.Browser.CDPURL != "" {
		progressf("  Attaching to %s...\n", cfg.Browser.CDPURL)
	} else {
		progressf("  Launching browser...\n")
	}
	p, err := cdp.Attach(ctx, cdp.Options{
		URL:      cfg.Browser.CDPURL,
		Host:     cfg.Browser.Host,
		Headless: cfg.Browser.Headless,
		Hooks: cdp.Hooks{
			Send:       sel.SendButton,
			Save:       sel.SaveButton,
			Regenerate: sel.RegenerateButton,
			Prompts:    sel.Prompts(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("attaching to browser: %w", err)
	}
	return p, nil
}

// openPage returns a saved HTML snapshot when htmlPath is set and the live
// tab otherwise. The returned function releases the page.
func openPage(ctx context.Context, cfg config.Config, htmlPath string) (page.Page, func(), error) {
	if htmlPath != "" {
		p, err := html.Open(htmlPath, "")
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil
	}
	p, err := attach(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

func newScraper(cfg config.Config, p page.Page, st store.Store) *scrape.Scraper {
	sc := scrape.New(p)
	sc.Selectors = cfg.PageSelectors()
	sc.Policy = cfg.LocatorPolicy()
	sc.SidebarSettle = cfg.Estimator.SidebarSettle
	sc.Files = usage.NewFileCache(st)
	sc.Log = log.Default()
	return sc
}

// newEstimator wires a scraper and a tracker for the model currently
// selected on p.
func newEstimator(ctx context.Context, cfg config.Config, p page.Page, st store.Store) (*estimator.Estimator, error) {
	sc := newScraper(cfg, p, st)
	tr, err := usage.NewTracker(ctx, st, sc.CurrentModel(ctx), nil)
	if err != nil {
		return nil, fmt.Errorf("loading usage window: %w", err)
	}
	return estimator.New(estimator.Config{
		SettleDelay:        cfg.Estimator.SettleDelay,
		NewChatSettleDelay: cfg.Estimator.NewChatSettleDelay,
		PollInterval:       cfg.Estimator.PollInterval,
	}, sc, tr, cfg.UsageLimits(), log.Default()), nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/lugia19/claude-counter/internal/cli"
	"github.com/lugia19/claude-counter/internal/store"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", configPath())
	if _, err := os.Stat(configPath()); err == nil {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [Browser]")
	if cfg.Browser.CDPURL != "" {
		fmt.Printf("    DevTools URL: %s\n", cfg.Browser.CDPURL)
	} else {
		fmt.Printf("    DevTools URL: not set (launches a browser, headless=%v)\n", cfg.Browser.Headless)
	}
	fmt.Printf("    Host:         %s\n", cfg.Browser.Host)
	fmt.Println()

	fmt.Println("  [Estimator]")
	fmt.Printf("    Model poll:          %s\n", cfg.Estimator.PollInterval)
	fmt.Printf("    Settle delay:        %s\n", cfg.Estimator.SettleDelay)
	fmt.Printf("    New chat settle:     %s\n", cfg.Estimator.NewChatSettleDelay)
	fmt.Printf("    Sidebar settle:      %s\n", cfg.Estimator.SidebarSettle)
	fmt.Printf("    Element wait:        %d x %s\n", cfg.Locator.Attempts, cfg.Locator.Interval)
	fmt.Println()

	fmt.Println("  [Limits]")
	limits := cfg.UsageLimits()
	models := make([]string, 0, len(limits.Models))
	for m := range limits.Models {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		fmt.Printf("    %-18s %s\n", m+":", cli.FormatNumber(limits.For(m)))
	}
	fmt.Printf("    %-18s %s\n", "default:", cli.FormatNumber(limits.Default))
	fmt.Printf("    Warning at:        %s\n", cli.FormatPercent(limits.WarningThreshold))
	fmt.Println()

	fmt.Println("  [Export]")
	fmt.Printf("    Prefix: %s\n", cfg.Export.Prefix)
	if cfg.Export.Format != "" {
		fmt.Printf("    Format: %s\n", cfg.Export.Format)
	} else {
		fmt.Println("    Format: ask")
	}
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  [Store]")
	fmt.Printf("    Path:    %s\n", cfg.StorePath())
	fmt.Printf("    Entries: %s\n", storeEntries(cmd.Context(), cfg.StorePath()))
	fmt.Println()
	return nil
}

// storeEntries reports how many keys the database holds without creating
// it when it does not exist yet.
func storeEntries(ctx context.Context, path string) string {
	if _, err := os.Stat(path); err != nil {
		return "none (not created yet)"
	}
	st, err := store.Open(path)
	if err != nil {
		return "unreadable (" + err.Error() + ")"
	}
	defer func() { _ = st.Close() }()
	n, err := st.Count(ctx)
	if err != nil {
		return "unreadable (" + err.Error() + ")"
	}
	return cli.FormatNumber(int64(n))
}

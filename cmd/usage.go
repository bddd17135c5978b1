package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/lugia19/claude-counter/internal/cli"
	"github.com/lugia19/claude-counter/internal/usage"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var flagUsageAll bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show stored usage windows per model",
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().BoolVarP(&flagUsageAll, "all", "a", false, "Include windows past their reset")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	windows, err := usage.ListWindows(cmd.Context(), st)
	if err != nil {
		return fmt.Errorf("listing windows: %w", err)
	}
	now := time.Now()
	if !flagUsageAll {
		windows = usage.ActiveWindows(windows, now)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("USAGE WINDOWS"))
	fmt.Println()
	if len(windows) == 0 {
		fmt.Println("  No active usage windows.")
		fmt.Println()
		return nil
	}

	fmt.Print(cli.RenderTable(usageTable(windows, cfg.UsageLimits(), now)))
	fmt.Println(usageSummary(windows))
	fmt.Println()
	return nil
}

func usageSummary(windows []usage.StoredWindow) string {
	total := lo.SumBy(windows, func(w usage.StoredWindow) int64 { return w.Window.Total })
	noun := "models"
	if len(windows) == 1 {
		noun = "model"
	}
	return fmt.Sprintf("  %s tokens across %d %s", cli.FormatTokens(total), len(windows), noun)
}

func usageTable(windows []usage.StoredWindow, limits usage.Limits, now time.Time) cli.Table {
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].Window.Total > windows[j].Window.Total
	})

	t := cli.Table{
		Headers: []string{"Model", "Tokens", "Limit", "Used", "Resets in"},
	}
	for _, w := range windows {
		model := w.Label()
		t.Rows = append(t.Rows, []string{
			model,
			cli.FormatNumber(w.Window.Total),
			cli.FormatNumber(limits.For(model)),
			cli.FormatPercent(limits.Percent(model, w.Window.Total) / 100),
			cli.FormatCountdown(w.Window.ResetAt(), now),
		})
	}
	return t
}

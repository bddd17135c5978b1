package cmd

import (
	"fmt"
	"time"

	"github.com/lugia19/claude-counter/internal/cli"
	"github.com/lugia19/claude-counter/internal/estimator"
	"github.com/lugia19/claude-counter/internal/page"
	"github.com/lugia19/claude-counter/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagCountHTML   string
	flagCountDryRun bool
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Run one counting pass now and print the window",
	RunE:  runCount,
}

func init() {
	countCmd.Flags().StringVar(&flagCountHTML, "html", "", "Count a saved page instead of the live tab")
	countCmd.Flags().BoolVar(&flagCountDryRun, "dry-run", false, "Measure without touching the usage store")
	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var st store.Store = store.NewMemory()
	if !flagCountDryRun {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		st = db
	}

	pg, release, err := openPage(ctx, cfg, flagCountHTML)
	if err != nil {
		return err
	}
	defer release()

	est, err := newEstimator(ctx, cfg, pg, st)
	if err != nil {
		return err
	}
	snap, err := est.CountPass(ctx, page.TriggerManual)
	if err != nil {
		return fmt.Errorf("counting pass: %w", err)
	}

	printSnapshot(snap)
	return nil
}

func printSnapshot(snap estimator.Snapshot) {
	fmt.Println()
	fmt.Println(cli.RenderTitle("CLAUDE COUNTER"))
	fmt.Println()
	fmt.Printf("  Model:     %s\n", snap.Model)
	fmt.Printf("  %s\n", cli.FormatLast(snap.Last))
	fmt.Printf("  Window:    %s\n", cli.FormatUsage(snap.Total, snap.Limit, snap.Percent))
	fmt.Printf("  Resets in: %s\n", cli.FormatCountdown(snap.ResetAt, time.Now()))
	fmt.Printf("  %s\n", cli.RenderUsageBar(snap.Percent, snap.Warning, 40))
	fmt.Println()
}

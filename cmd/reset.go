package cmd

import (
	"errors"
	"fmt"

	"github.com/lugia19/claude-counter/internal/usage"

	"github.com/spf13/cobra"
)

var flagResetAll bool

var resetCmd = &cobra.Command{
	Use:   "reset [MODEL]",
	Short: "Delete a stored usage window",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&flagResetAll, "all", false, "Delete every stored window")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !flagResetAll {
		return errors.New("name a model or pass --all")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := cmd.Context()
	models := args
	if flagResetAll {
		windows, err := usage.ListWindows(ctx, st)
		if err != nil {
			return fmt.Errorf("listing windows: %w", err)
		}
		models = models[:0]
		for _, w := range windows {
			models = append(models, w.Key)
		}
	}

	for _, m := range models {
		if err := usage.DeleteWindow(ctx, st, m); err != nil {
			return fmt.Errorf("deleting window for %s: %w", m, err)
		}
		progressf("  Reset %s\n", m)
	}
	return nil
}

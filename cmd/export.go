package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/lugia19/claude-counter/internal/exporter"
	"github.com/lugia19/claude-counter/internal/store"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	flagExportFormat string
	flagExportHTML   string
	flagExportOut    string
	flagExportPrefix string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the open conversation as text or JSONL",
	Long: "Export the visible turns of the open conversation. Without --format the\n" +
		"configured format is used, or a picker is shown on a terminal.\n" +
		"Use --out - to write to stdout.",
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&flagExportFormat, "format", "f", "", "Export format: txt or jsonl")
	exportCmd.Flags().StringVar(&flagExportHTML, "html", "", "Export a saved page instead of the live tab")
	exportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "", "Output directory, or - for stdout")
	exportCmd.Flags().StringVar(&flagExportPrefix, "prefix", "", "Filename prefix")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Validate before touching the browser.
	format, err := chooseFormat(flagExportFormat, cfg.Export.Format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pg, release, err := openPage(ctx, cfg, flagExportHTML)
	if err != nil {
		return err
	}
	defer release()

	opts := exporter.Options{
		Format: format,
		Prefix: lo.CoalesceOrEmpty(flagExportPrefix, cfg.Export.Prefix, exporter.DefaultPrefix),
		Dir:    lo.CoalesceOrEmpty(flagExportOut, cfg.Export.Dir, "."),
		Stdout: cmd.OutOrStdout(),
	}
	// The scraper only reads here, so file counts never reach the store.
	res, err := exporter.Export(ctx, newScraper(cfg, pg, store.NewMemory()), opts)
	if errors.Is(err, exporter.ErrNoActiveConversation) {
		return errors.New("no conversation is open; open a chat and try again")
	}
	if err != nil {
		return err
	}

	if res.Path != "" {
		progressf("  Exported %d messages to %s\n", res.Messages, res.Path)
	}
	return nil
}

// chooseFormat resolves the export format from the flag, then the config,
// then an interactive picker when stdin is a terminal, then plain text.
func chooseFormat(flag, configured string) (exporter.Format, error) {
	if v := lo.CoalesceOrEmpty(flag, configured); v != "" {
		return exporter.ParseFormat(v)
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return exporter.Text, nil
	}

	choice := exporter.Text
	options := lo.Map(exporter.Formats, func(f exporter.Format, _ int) huh.Option[exporter.Format] {
		return huh.NewOption(f.Label(), f)
	})
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[exporter.Format]().
			Title("Export format").
			Options(options...).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("format picker: %w", err)
	}
	return choice, nil
}

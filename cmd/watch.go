package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/lugia19/claude-counter/internal/config"
	"github.com/lugia19/claude-counter/internal/store"
	"github.com/lugia19/claude-counter/internal/tui"
	"github.com/lugia19/claude-counter/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var flagWatchLogFile string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Attach to the chat tab and show the usage panel",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchLogFile, "log-file",
		filepath.Join(store.DataDir(), "watch.log"), "Log file while the panel owns the terminal")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	pg, err := attach(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	est, err := newEstimator(ctx, cfg, pg, st)
	if err != nil {
		return err
	}
	triggers, err := pg.Triggers(ctx)
	if err != nil {
		return fmt.Errorf("installing page hooks: %w", err)
	}

	// The panel owns the terminal from here on.
	if err := os.MkdirAll(filepath.Dir(flagWatchLogFile), 0o750); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logf, err := tea.LogToFile(flagWatchLogFile, "claude-counter")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	theme.SetActive(cfg.Appearance.Theme)
	// Force TrueColor so the bar colors survive terminals lipgloss misdetects.
	lipgloss.SetColorProfile(termenv.TrueColor)

	snaps, unsubscribe := est.Subscribe(16)
	defer unsubscribe()

	program := tea.NewProgram(tui.NewApp(est.Snapshot(), snaps),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
	)

	est.OnError(func(err error) { program.Send(tui.ErrMsg{Err: err}) })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		est.Run(ctx, triggers)
	}()

	if _, err := os.Stat(configPath()); err == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.Watch(ctx, configPath(), func(c config.Config) {
				est.SetLimits(c.UsageLimits())
				program.Send(tui.ThemeMsg{Name: c.Appearance.Theme})
			}, func(err error) {
				program.Send(tui.ErrMsg{Err: fmt.Errorf("config reload: %w", err)})
			})
			if err != nil {
				program.Send(tui.ErrMsg{Err: err})
			}
		}()
	}

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	_, runErr := program.Run()
	cancel()
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lugia19/claude-counter/internal/daemon"

	"github.com/spf13/cobra"
)

var (
	flagServeAddr         string
	flagServeEventsBuffer int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the estimator headless with HTTP/SSE endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "127.0.0.1:8787", "HTTP listen address")
	serveCmd.Flags().IntVar(&flagServeEventsBuffer, "events-buffer", 200, "Max in-memory events retained")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	svc := daemon.New(daemon.Config{
		Addr:         flagServeAddr,
		EventsBuffer: flagServeEventsBuffer,
	}, est)

	est.OnError(svc.SetError)

	estDone := make(chan struct{})
	go func() {
		defer close(estDone)
		est.Run(ctx, triggers)
	}()

	fmt.Printf("  claude-counter listening on http://%s\n", flagServeAddr)
	fmt.Printf("  Watching %s, stop with Ctrl+C\n", cfg.Browser.Host)

	err = svc.Run(ctx)
	cancel()
	<-estDone
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

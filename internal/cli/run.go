package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"remindbot/internal/app"
)

var stopTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot",
	Long: `Loads every stored reminder, reschedules it, and then starts polling Telegram.

Examples:
  remindbot run --config /etc/remindbot/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigs)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a, err := app.NewApp(configPath)
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
			defer scancel()
			_ = a.Stop(sctx, app.StopFatalError)
			return fmt.Errorf("start: %w", err)
		}

		reason := app.StopAppStop
		select {
		case sig := <-sigs:
			reason = app.ReasonFromSignal(sig)
		case <-a.Done():
			if a.Err() != nil {
				reason = app.StopFatalError
			}
		}
		cancel()

		sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
		defer scancel()
		_ = a.Stop(sctx, reason)
		if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	runCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "upper bound for graceful shutdown")
	rootCmd.AddCommand(runCmd)
}

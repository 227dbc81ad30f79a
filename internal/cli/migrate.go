package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"remindbot/internal/app"
	logx "remindbot/pkg/logx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade the stored snapshot to the current schema",
	Long: `Reads the configured snapshot, migrates legacy records and writes it back.
Records that cannot be read are listed and dropped from the rewritten snapshot.

Examples:
  remindbot migrate --config config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}
		store, err := app.OpenStore(cfg, logx.NewConsole("info"))
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		rep, err := store.Load(ctx)
		if err != nil {
			return err
		}
		if err := store.Flush(ctx); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "records: %d, migrated: %d, skipped: %d\n", rep.Total, rep.Migrated, len(rep.Skipped))
		ids := make([]string, 0, len(rep.Skipped))
		for id := range rep.Skipped {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "  %s: %v\n", id, rep.Skipped[id])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// Package cli implements the remindbot command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "remindbot",
	Short: "Telegram reminder bot with Chinese time expressions",
	Long: `remindbot schedules reminders from messages such as
"明天下午三点提醒我开会" or "每周一 9:00 周会" and delivers them over Telegram.

Reminders are kept in a snapshot (file or sqlite) and rescheduled on start.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.json", "path to config file (json, yaml or toml)")
}

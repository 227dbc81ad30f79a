package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"remindbot/internal/app"
	logx "remindbot/pkg/logx"
)

var parseVerbose bool

var parseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "Resolve a time expression without starting the bot",
	Long: `Runs the resolver chain configured in the config file against the text and
prints the resolved schedule plus the text left once the time phrase is removed.

Examples:
  remindbot parse 明天下午三点开会
  remindbot parse "每周一 9:00 周会" -v`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}
		log := logx.Nop()
		if parseVerbose {
			log = logx.NewConsole("debug")
		}
		res, err := app.NewResolver(cfg, log)
		if err != nil {
			return err
		}
		text := strings.Join(args, " ")
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		r, rest := res.ExtractAndSplit(ctx, text)
		out := cmd.OutOrStdout()
		if !r.OK() {
			fmt.Fprintf(out, "unresolved: %q\n", text)
			return nil
		}
		fmt.Fprintf(out, "kind:     %s\n", r.Kind)
		fmt.Fprintf(out, "schedule: %s\n", r.Schedule())
		fmt.Fprintf(out, "source:   %s\n", r.Source)
		fmt.Fprintf(out, "rest:     %q\n", rest)
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVarP(&parseVerbose, "verbose", "v", false, "log resolver stages to stderr")
	rootCmd.AddCommand(parseCmd)
}

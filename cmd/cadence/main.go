package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/cadence/cmd/cadence/commands"
	"github.com/teranos/cadence/logger"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "cadence - recurring character and content generation scheduler",
	Long: `cadence - recurring character and content generation scheduler.

Schedules describe how often new characters or content should be produced.
Each tick claims due schedules, queues generation jobs and advances the next
run; drains run the queued jobs through the generation pipeline.

Available commands:
  pulse    - Run ticks, drains and the long-lived worker daemon
  schedule - Create, inspect, pause and import schedules
  jobs     - Inspect and purge generation jobs
  server   - Serve trigger endpoints, metrics and the live job stream
  am       - Manage configuration ("I am")
  db       - Database migrations

Examples:
  cadence schedule create --owner u1 --kind character_autogen --every daily
  cadence pulse tick                 # One scheduler pass
  cadence pulse drain --limit 5      # Run up to five queued jobs
  cadence pulse start                # Ticker plus worker pool in the foreground
  cadence server                     # HTTP triggers for an external cron`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetVerbosity(verbosity)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Emit JSON logs and JSON command output")
	rootCmd.PersistentFlags().String("db", "", "Database path (overrides database.path)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: cascade of /etc/cadence, ~/.cadence and ./am.toml)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

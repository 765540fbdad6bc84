package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/server"
	"github.com/teranos/cadence/sym"
)

// ServerCmd serves the trigger endpoints
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   sym.Pulse + " Serve trigger endpoints, schedule API, metrics and the job stream",
	Long: `Serve the HTTP API.

An external cron calls POST /api/pulse/tick and POST /api/pulse/drain; set
server.cron_secret to require "Authorization: Bearer <secret>" on them.
With --daemon the process also runs its own ticker and worker pool, so no
external cron is needed.

Examples:
  cadence server                      # Triggers only, on server.port
  cadence server --port 9000 --daemon --workers 2`,
	RunE: runServer,
}

func init() {
	ServerCmd.Flags().Int("port", 0, "Listen port (default: server.port)")
	ServerCmd.Flags().Bool("daemon", false, "Also run the ticker and worker pool in this process")
	ServerCmd.Flags().Int("workers", -1, "Workers when --daemon is set (default: pulse.workers)")
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.NewCadenceServer(server.Deps{
		Config:     a.cfg,
		Schedules:  a.schedules,
		Executions: a.executions,
		Queue:      a.queue,
		Driver:     a.driver,
		Drainer:    a.drainer,
		Metrics:    a.metrics,
	}, a.log)

	if daemonize, _ := cmd.Flags().GetBool("daemon"); daemonize {
		workers, _ := cmd.Flags().GetInt("workers")
		d, err := startDaemon(ctx, a, cmd, workers)
		if err != nil {
			return err
		}
		defer d.Stop()
		pterm.Info.Printf("%s Daemon: %s\n", sym.Pulse, d.Summary(a))
	}

	port, _ := cmd.Flags().GetInt("port")
	if port <= 0 {
		port = a.cfg.GetServerPort()
	}
	pterm.Info.Printf("%s Listening on :%d, Ctrl+C to stop\n", sym.Pulse, port)
	return srv.Start(ctx, port)
}

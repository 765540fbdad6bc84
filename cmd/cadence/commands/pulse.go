package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/schedule"
	"github.com/teranos/cadence/sym"
)

// PulseCmd groups the scheduler and queue operations
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Run scheduler ticks, queue drains and the worker daemon",
	Long: sym.Pulse + ` Pulse - the scheduler and the generation queue.

A tick finds due schedules, claims each due period once, queues its jobs and
advances the next run. A drain claims pending jobs and runs them through the
generation pipeline. Both are safe to run from several processes at once.

Examples:
  cadence pulse tick                   # One scheduler pass now
  cadence pulse tick --at 2026-03-14T09:00:00Z
  cadence pulse drain --limit 10       # Run up to ten pending jobs
  cadence pulse reap                   # Fail jobs whose lease expired
  cadence pulse start --workers 3      # Ticker plus worker pool until Ctrl+C`,
}

var pulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the ticker and worker pool in the foreground",
	RunE:  runPulseStart,
}

var pulseTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler pass",
	RunE:  runPulseTick,
}

var pulseDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run up to --limit pending jobs",
	RunE:  runPulseDrain,
}

var pulseReapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Fail generating jobs whose lease has expired",
	RunE:  runPulseReap,
}

func init() {
	pulseStartCmd.Flags().Int("workers", -1, "Number of concurrent workers (default: pulse.workers)")
	pulseTickCmd.Flags().String("at", "", "Tick as if the time were this RFC3339 instant")
	pulseDrainCmd.Flags().Int("limit", 0, "Maximum jobs to run (default: pulse.drain_limit)")

	PulseCmd.AddCommand(pulseStartCmd)
	PulseCmd.AddCommand(pulseTickCmd)
	PulseCmd.AddCommand(pulseDrainCmd)
	PulseCmd.AddCommand(pulseReapCmd)
}

// daemon is the ticker, worker pool and config watcher of a long-lived process
type daemon struct {
	pool    *async.WorkerPool
	ticker  *schedule.Ticker
	watcher *am.ConfigWatcher
}

// startDaemon starts the worker pool and ticker. workers < 0 keeps pulse.workers;
// zero workers or an empty tick spec leave that half out.
func startDaemon(ctx context.Context, a *app, cmd *cobra.Command, workers int) (*daemon, error) {
	poolCfg := async.WorkerPoolConfigFrom(a.cfg)
	if workers >= 0 {
		poolCfg.Workers = workers
	}

	d := &daemon{}
	if poolCfg.Workers > 0 {
		d.pool = async.NewWorkerPool(ctx, a.drainer, poolCfg, a.metrics, a.log)
		d.pool.Start()
	}
	if a.cfg.Pulse.TickSpec != "" {
		d.ticker = schedule.NewTicker(ctx, a.driver, a.schedules, a.queue, d.pool, nil,
			schedule.TickerConfig{Spec: a.cfg.Pulse.TickSpec}, a.log)
		if err := d.ticker.Start(); err != nil {
			d.Stop()
			return nil, err
		}
	}
	if d.pool != nil {
		d.watchConfig(a, cmd)
	}
	return d, nil
}

// watchConfig hot-reloads drain settings from the highest-precedence config file
func (d *daemon) watchConfig(a *app, cmd *cobra.Command) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		for _, candidate := range am.ConfigSearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path == "" {
		return
	}

	watcher, err := am.NewConfigWatcher(am.ExpandPath(path))
	if err != nil {
		a.log.Warnw("Config hot-reload disabled", logger.FieldError, err)
		return
	}
	watcher.OnReload(func(cfg *am.Config) error {
		d.pool.UpdateConfig(async.WorkerPoolConfigFrom(cfg))
		return nil
	})
	am.SetGlobalWatcher(watcher)
	watcher.Start()
	d.watcher = watcher
}

// Stop shuts down in reverse start order
func (d *daemon) Stop() {
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Logger.Warnw("Failed to stop config watcher", logger.FieldError, err)
		}
	}
	if d.ticker != nil {
		d.ticker.Stop()
	}
	if d.pool != nil {
		d.pool.Stop()
	}
}

// Summary describes what the daemon runs
func (d *daemon) Summary(a *app) string {
	workers := "no workers"
	if d.pool != nil {
		workers = fmt.Sprintf("%d worker(s), drain limit %d", d.pool.Workers(), d.pool.Config().DrainLimit)
	}
	ticker := "ticker off"
	if d.ticker != nil {
		ticker = "tick " + a.cfg.Pulse.TickSpec
	}
	return workers + ", " + ticker
}

// JobsProcessed reports jobs handled by the pool since start
func (d *daemon) JobsProcessed() int {
	if d.pool == nil {
		return 0
	}
	return d.pool.JobsProcessed()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	workers, _ := cmd.Flags().GetInt("workers")
	d, err := startDaemon(ctx, a, cmd, workers)
	if err != nil {
		return err
	}

	logger.PulseInfow("Pulse daemon started", "pid", os.Getpid())
	pterm.Info.Printf("%s Pulse started: %s\n", sym.Pulse, d.Summary(a))
	pterm.Println(pterm.Gray("Press Ctrl+C for graceful shutdown"))

	<-ctx.Done()
	pterm.Info.Printf("%s Shutting down, running jobs finish their current call...\n", sym.PulseClose)
	d.Stop()
	pterm.Success.Printf("Pulse stopped after %d job(s)\n", d.JobsProcessed())
	return nil
}

func runPulseTick(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	clock := schedule.Clock(schedule.SystemClock{})
	if at, _ := cmd.Flags().GetString("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return errors.Wrapf(err, "invalid --at %q", at)
		}
		clock = schedule.FixedClock(t)
	}

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, tickErr := a.driver.RunTick(ctx, clock.Now())
	if wantsJSON(cmd) {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		return tickErr
	}
	if report != nil {
		printTickReport(report)
	}
	return tickErr
}

func printTickReport(r *schedule.TickReport) {
	pterm.Info.Printf("%s Tick at %s: %d due, %d succeeded, %d failed, %d skipped, %d job(s) queued (%dms)\n",
		sym.Pulse, r.At.Format(time.RFC3339), r.SchedulesProcessed, r.Succeeded, r.Failed, r.Skipped, r.JobsQueued, r.DurationMs)
	for _, e := range r.Errors {
		pterm.Warning.Println(e)
	}
}

func runPulseDrain(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = a.cfg.Pulse.DrainLimit
	}

	report, drainErr := a.drainer.Drain(ctx, limit)
	if wantsJSON(cmd) {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		return drainErr
	}
	if report != nil {
		pterm.Info.Printf("%s Drain: %d processed, %d succeeded, %d failed\n",
			sym.Pulse, report.Processed, report.Succeeded, report.Failed)
		for _, e := range report.Errors {
			pterm.Warning.Println(e)
		}
	}
	return drainErr
}

func runPulseReap(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	pool := async.NewWorkerPool(ctx, a.drainer, async.WorkerPoolConfigFrom(a.cfg), a.metrics, a.log)
	jobs, err := pool.Reap(ctx)
	if err != nil {
		return err
	}
	if wantsJSON(cmd) {
		return printJSON(cmd, jobs)
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No expired leases")
		return nil
	}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{j.ShortID(), j.HandlerName, shortID(j.ScheduleID), strconv.Itoa(j.Progress.Current)})
	}
	pterm.Warning.Printf("Failed %d job(s) with expired leases\n", len(jobs))
	return renderTable([]string{"JOB", "HANDLER", "SCHEDULE", "IMAGES"}, rows)
}

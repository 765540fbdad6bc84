package schedule

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/internal/util"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/metrics"
)

// JobQueue is the part of the work queue a tick writes to
type JobQueue interface {
	EnqueueBatch(ctx context.Context, specs []async.JobSpec) ([]string, error)
}

// Kicker starts a queued job right away instead of waiting for the next drain
type Kicker interface {
	Kick(ctx context.Context, jobID string)
}

// TickReport summarizes one RunTick
type TickReport struct {
	At                 time.Time `json:"at"`
	SchedulesProcessed int       `json:"schedules_processed"`
	Succeeded          int       `json:"succeeded"`
	Failed             int       `json:"failed"`
	Skipped            int       `json:"skipped"` // due periods claimed by a concurrent tick
	JobsQueued         int       `json:"jobs_queued"`
	Errors             []string  `json:"errors,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
}

// DriverOption configures a Driver
type DriverOption func(*Driver)

// WithKicker starts the first job of every successful period in the background
func WithKicker(k Kicker) DriverOption {
	return func(d *Driver) {
		d.kicker = k
	}
}

// WithMetrics records tick outcomes
func WithMetrics(m *metrics.Collector) DriverOption {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithRand replaces the per-tick random source used for job expansion
func WithRand(newRand func() *rand.Rand) DriverOption {
	return func(d *Driver) {
		d.newRand = newRand
	}
}

// Driver runs scheduler ticks: find due schedules, claim each period, queue its jobs
type Driver struct {
	store      *Store
	executions *ExecutionStore
	queue      JobQueue
	kicker     Kicker
	metrics    *metrics.Collector
	newRand    func() *rand.Rand
	logger     *zap.SugaredLogger
}

// NewDriver creates a driver. executions may be nil to skip run history.
func NewDriver(store *Store, executions *ExecutionStore, queue JobQueue, log *zap.SugaredLogger, opts ...DriverOption) *Driver {
	d := &Driver{
		store:      store,
		executions: executions,
		queue:      queue,
		newRand:    util.NewRand,
		logger:     logger.AddScheduleSymbol(log),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunTick processes every schedule due at now. Only a failure to read due
// schedules aborts the tick; each schedule's failure is isolated and reported.
func (d *Driver) RunTick(ctx context.Context, now time.Time) (*TickReport, error) {
	started := time.Now()
	now = now.UTC()
	report := &TickReport{At: now}

	due, err := d.store.FindDue(ctx, now)
	if err != nil {
		d.metrics.ObserveTickError()
		return report, errors.Wrap(err, "failed to find due schedules")
	}
	report.SchedulesProcessed = len(due)

	rng := d.newRand()
	for _, sched := range due {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, "tick cancelled: "+err.Error())
			break
		}

		queued, err := d.runSchedule(ctx, sched, now, rng)
		switch {
		case errors.Is(err, errors.ErrStaleSchedule):
			report.Skipped++
		case err != nil:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("schedule %s: %s", sched.ID, err.Error()))
		default:
			report.Succeeded++
			report.JobsQueued += queued
		}
	}

	report.DurationMs = time.Since(started).Milliseconds()
	d.metrics.ObserveTick(report.Succeeded, report.Failed, report.Skipped, report.JobsQueued)

	if report.SchedulesProcessed > 0 {
		d.logger.Infow("Tick complete",
			"due", report.SchedulesProcessed,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"skipped", report.Skipped,
			"jobs_queued", report.JobsQueued,
			logger.FieldDurationMS, report.DurationMs,
		)
	}
	return report, nil
}

// runSchedule claims the schedule's period, then queues its jobs. The schedule
// is advanced before enqueueing, so a failed enqueue never repeats the period.
func (d *Driver) runSchedule(ctx context.Context, sched *Schedule, now time.Time, rng *rand.Rand) (int, error) {
	log := d.logger.With(logger.FieldScheduleID, sched.ID, logger.FieldOwnerID, sched.OwnerID)
	started := time.Now()

	next, err := d.store.Advance(ctx, sched.ID, sched.NextScheduledAt, now)
	if errors.Is(err, errors.ErrStaleSchedule) {
		log.Debugw("Period already claimed by another tick")
		return 0, err
	}
	if err != nil {
		log.Warnw("Failed to advance schedule", logger.FieldError, err)
		return 0, err
	}

	exec := &Execution{
		ScheduleID: sched.ID,
		StartedAt:  now,
	}

	specs, err := Expand(sched, rng)
	if err == nil {
		exec.JobIDs, err = d.queue.EnqueueBatch(ctx, specs)
	}
	if err != nil {
		log.Warnw("Failed to queue jobs, period skipped",
			logger.FieldError, err,
			logger.FieldNextRunAt, next,
		)
		exec.Status = ExecutionStatusFailed
		exec.ErrorMessage = err.Error()
		d.record(ctx, exec, started, log)
		return 0, err
	}

	exec.Status = ExecutionStatusQueued
	exec.JobsQueued = len(exec.JobIDs)
	d.record(ctx, exec, started, log)

	if d.kicker != nil && len(exec.JobIDs) > 0 {
		d.kicker.Kick(ctx, exec.JobIDs[0])
	}

	log.Infow("Queued jobs for due period",
		logger.FieldCount, exec.JobsQueued,
		logger.FieldNextRunAt, next,
	)
	return exec.JobsQueued, nil
}

// record writes run history. Failures are logged; the period stays claimed.
func (d *Driver) record(ctx context.Context, exec *Execution, started time.Time, log *zap.SugaredLogger) {
	if d.executions == nil {
		return
	}
	completed := exec.StartedAt.Add(time.Since(started))
	exec.CompletedAt = &completed
	exec.DurationMs = time.Since(started).Milliseconds()
	if err := d.executions.Record(ctx, exec); err != nil {
		log.Warnw("Failed to record execution", logger.FieldError, err)
	}
}

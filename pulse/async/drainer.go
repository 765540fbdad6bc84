package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/metrics"
)

// ScheduleCounters receives the denormalized run counters of the schedule a
// job came from. Updates are best effort.
type ScheduleCounters interface {
	IncrementCounters(ctx context.Context, id string, completedDelta, failedDelta int) error
}

// DrainReport summarizes one Drain call
type DrainReport struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Drainer claims pending jobs, runs them through the handler registry and
// moves each to a terminal status. One job's failure never aborts the batch.
type Drainer struct {
	queue    *Queue
	registry *HandlerRegistry
	counters ScheduleCounters
	metrics  *metrics.Collector
	logger   *zap.SugaredLogger

	wg sync.WaitGroup // fire-and-forget kicks
}

// NewDrainer creates a drainer. counters and m may be nil.
func NewDrainer(queue *Queue, registry *HandlerRegistry, counters ScheduleCounters, m *metrics.Collector, log *zap.SugaredLogger) *Drainer {
	return &Drainer{
		queue:    queue,
		registry: registry,
		counters: counters,
		metrics:  m,
		logger:   logger.AddPulseSymbol(log),
	}
}

// Queue returns the queue the drainer claims from
func (d *Drainer) Queue() *Queue {
	return d.queue
}

// Drain claims up to limit pending jobs and processes them sequentially.
// Only a failed claim returns an error; per-job failures land in the report.
func (d *Drainer) Drain(ctx context.Context, limit int) (*DrainReport, error) {
	report := &DrainReport{}

	jobs, err := d.queue.ClaimPending(ctx, limit)
	if err != nil {
		return report, errors.Wrap(err, "failed to claim jobs")
	}

	for _, job := range jobs {
		report.Processed++
		if err := d.process(ctx, job); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("job %s: %s", job.ShortID(), err.Error()))
			continue
		}
		report.Succeeded++
	}

	if report.Processed > 0 {
		d.logger.Infow("Drain complete",
			"processed", report.Processed,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// Kick runs one specific job in the background if it is still pending.
// The work is detached from ctx cancellation; Wait blocks until it ends.
func (d *Drainer) Kick(ctx context.Context, jobID string) {
	detached := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		job, err := d.queue.ClaimByID(detached, jobID)
		if err != nil {
			d.logger.Warnw("Kick could not claim job", logger.FieldJobID, jobID, logger.FieldError, err)
			return
		}
		if job == nil {
			d.logger.Debugw("Kicked job already claimed", logger.FieldJobID, jobID)
			return
		}
		_ = d.process(detached, job)
	}()
}

// Wait blocks until every kicked job has finished
func (d *Drainer) Wait() {
	d.wg.Wait()
}

// process executes a claimed job and records its terminal status.
// The returned error is the reason the job did not complete.
func (d *Drainer) process(ctx context.Context, job *Job) error {
	log := d.logger.With(
		logger.FieldJobID, job.ID,
		logger.FieldHandler, job.HandlerName,
	)
	if job.ScheduleID != "" {
		log = log.With(logger.FieldScheduleID, job.ScheduleID)
	}
	ctx = logger.WithJobID(ctx, job.ID)

	started := time.Now()
	result, execErr := d.execute(ctx, job)

	// Terminal writes outlive a shutdown that cancelled the execution
	ctx = context.WithoutCancel(ctx)

	var warnings []string
	var resultRef string
	if result != nil {
		warnings = result.Warnings
		resultRef = result.ResultRef
	}

	if execErr != nil {
		classified := ClassifyError("execute", execErr)
		log.Warnw("Job failed",
			logger.FieldError, execErr,
			logger.FieldErrorType, classified.Code,
			"warnings", len(warnings),
		)
		changed, err := d.queue.MarkFailed(ctx, job.ID, execErr.Error(), warnings)
		if err != nil {
			log.Errorw("Failed to record job failure", logger.FieldError, err)
		}
		// A job the reaper already failed was counted there
		if changed {
			d.bumpCounters(ctx, job, 0, 1, log)
		}
		d.metrics.ObserveJob(job.HandlerName, string(JobStatusFailed), time.Since(started))
		return execErr
	}

	changed, err := d.queue.MarkCompleted(ctx, job.ID, resultRef, warnings)
	if err != nil {
		// The lease reaper fails the job later if this write never lands
		log.Errorw("Failed to record job completion", logger.FieldError, err)
		return errors.Wrap(err, "failed to mark job completed")
	}
	if !changed {
		log.Warnw("Job finished after it was already terminal",
			logger.FieldDurationMS, time.Since(started).Milliseconds(),
		)
		return errors.Wrapf(ErrJobTerminal, "job %s", job.ShortID())
	}
	d.bumpCounters(ctx, job, 1, 0, log)
	d.metrics.ObserveJob(job.HandlerName, string(JobStatusCompleted), time.Since(started))

	log.Infow("Job completed",
		"result_ref", resultRef,
		"warnings", len(warnings),
		logger.FieldDurationMS, time.Since(started).Milliseconds(),
	)
	return nil
}

// execute runs the handler, converting a panic into a job error
func (d *Drainer) execute(ctx context.Context, job *Job) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("Handler panicked",
				logger.FieldJobID, job.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = errors.Newf("handler %s panicked: %v", job.HandlerName, r)
		}
	}()
	return d.registry.Execute(ctx, job)
}

func (d *Drainer) bumpCounters(ctx context.Context, job *Job, completed, failed int, log *zap.SugaredLogger) {
	if d.counters == nil || job.ScheduleID == "" {
		return
	}
	if err := d.counters.IncrementCounters(ctx, job.ScheduleID, completed, failed); err != nil {
		log.Warnw("Failed to update schedule counters", logger.FieldError, err)
		d.metrics.ObserveCounterUpdateFailure(string(ClassifyError("counters", err).Code))
	}
}

package async

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/metrics"
)

// JobProgressEmitter reports pipeline progress and step failures for one job.
// Progress writes double as the lease heartbeat.
type JobProgressEmitter struct {
	job     *Job
	queue   *Queue
	metrics *metrics.Collector
	log     *zap.SugaredLogger // job_id pre-configured
}

// NewJobProgressEmitter creates a progress emitter for a claimed job
func NewJobProgressEmitter(job *Job, queue *Queue, m *metrics.Collector, baseLogger *zap.SugaredLogger) *JobProgressEmitter {
	return &JobProgressEmitter{
		job:     job,
		queue:   queue,
		metrics: m,
		log:     baseLogger.With(logger.FieldJobID, job.ID),
	}
}

// UpdateProgress stores the number of completed items and extends the lease
func (e *JobProgressEmitter) UpdateProgress(ctx context.Context, count int) error {
	e.job.Progress.Current = count
	if err := e.queue.UpdateProgress(ctx, e.job.ID, count); err != nil {
		e.log.Warnw("Failed to update job progress",
			logger.FieldProgress, count,
			logger.FieldError, err,
		)
		return err
	}
	return nil
}

// EmitError classifies and logs a failed step
func (e *JobProgressEmitter) EmitError(stage string, err error) {
	ctx := ClassifyError(stage, err)

	e.log.Warnw("Job step failed",
		logger.FieldStep, stage,
		"error_code", ctx.Code,
		logger.FieldError, err,
		"retryable", ctx.Retryable,
	)
	e.metrics.ObserveStepError(stage, string(ctx.Code))
}

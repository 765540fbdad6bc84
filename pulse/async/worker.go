package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/metrics"
)

// pulseLogger wraps zap.SugaredLogger with special methods for Pulse operations
// Uses different log levels to create visual distinction:
// - DEBUG level → STARTING (✿ Opening operations)
// - WARN level → CLOSING (❀ Closing operations)
// - INFO level → PULSE (general worker operations)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("✿ "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw("❀ "+msg, keysAndValues...)
}

// Pulse logs general Pulse/worker operations
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`       // Number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // How often an idle worker checks for jobs
	DrainLimit   int           `json:"drain_limit"`   // Jobs claimed per drain
	ReapInterval time.Duration `json:"reap_interval"` // How often expired leases are failed; 0 reaps only at start
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 5 * time.Second,
		DrainLimit:   5,
		ReapInterval: time.Minute,
	}
}

// WorkerPoolConfigFrom reads the [pulse] section
func WorkerPoolConfigFrom(cfg *am.Config) WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      cfg.Pulse.Workers,
		PollInterval: cfg.Pulse.PollInterval(),
		DrainLimit:   cfg.Pulse.DrainLimit,
		ReapInterval: cfg.Pulse.ReapInterval(),
	}
}

// WorkerPool runs the drainer continuously with N workers
type WorkerPool struct {
	drainer *Drainer
	metrics *metrics.Collector

	parentCtx context.Context // Parent context from which worker context is derived
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu            sync.Mutex
	config        WorkerPoolConfig
	activeWorkers int       // Workers currently inside a drain
	jobsProcessed int       // Jobs handled since Start
	startTime     time.Time // When the pool last started
	logger        pulseLogger
}

// NewWorkerPool creates a worker pool. Cancelling ctx stops every worker.
func NewWorkerPool(ctx context.Context, drainer *Drainer, poolCfg WorkerPoolConfig, m *metrics.Collector, log *zap.SugaredLogger) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)
	if poolCfg.PollInterval <= 0 {
		poolCfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if poolCfg.DrainLimit <= 0 {
		poolCfg.DrainLimit = DefaultWorkerPoolConfig().DrainLimit
	}

	return &WorkerPool{
		drainer:   drainer,
		metrics:   m,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		config:    poolCfg,
		logger:    pulseLogger{logger.AddPulseSymbol(log.Named("pulse"))},
	}
}

// Start begins processing jobs with the worker pool
// ✿ Opening: fail jobs whose lease expired while no process was running them
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
	}
	wp.startTime = time.Now()
	wp.jobsProcessed = 0
	cfg := wp.config
	ctx := wp.ctx
	wp.mu.Unlock()

	if _, err := wp.Reap(ctx); err != nil {
		wp.logger.Warnw("Failed to reap expired jobs", logger.FieldError, err)
	}

	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.logger.Warnw("Memory pressure warning", "warning", warning, "workers", cfg.Workers)
	}

	for i := 0; i < cfg.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	wp.wg.Add(1)
	go wp.reaper(ctx)

	wp.logger.Starting("Worker pool started",
		"workers", cfg.Workers,
		"drain_limit", cfg.DrainLimit,
		"poll_interval", cfg.PollInterval,
	)
}

// Stop gracefully stops the worker pool
// ❀ Closing: running jobs finish their current collaborator call and record a terminal status
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	wp.cancel()
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		wp.drainer.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.logger.Pulse("❀ Worker pool stopped - all workers exited cleanly")
	case <-time.After(timeout):
		wp.logger.Closing("Worker pool stop timed out - workers may still be finishing", "timeout", timeout)
	}
}

// UpdateConfig applies new drain settings to running workers. A different
// worker count takes effect on the next Start.
func (wp *WorkerPool) UpdateConfig(poolCfg WorkerPoolConfig) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if poolCfg.Workers != wp.config.Workers {
		wp.logger.Pulse("Worker count changed, restart the pool to apply",
			"current", wp.config.Workers,
			"configured", poolCfg.Workers,
		)
	}
	if poolCfg.PollInterval > 0 {
		wp.config.PollInterval = poolCfg.PollInterval
	}
	if poolCfg.DrainLimit > 0 {
		wp.config.DrainLimit = poolCfg.DrainLimit
	}
	wp.config.ReapInterval = poolCfg.ReapInterval
	wp.config.Workers = poolCfg.Workers
}

// Config returns the settings workers currently use
func (wp *WorkerPool) Config() WorkerPoolConfig {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.config
}

// worker drains the queue, sleeping for the poll interval whenever a drain comes back short
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	interval := wp.Config().PollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	// Error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoffDuration := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		cfg := wp.Config()
		interval = cfg.PollInterval

		report, err := wp.drainOnce(ctx, cfg.DrainLimit)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, sql.ErrConnDone) {
				return
			}
			errorCount++
			wp.logger.Errorw("Worker error draining queue",
				"worker_id", id,
				logger.FieldError, err,
				"consecutive_errors", errorCount)

			wait := interval
			if errorCount >= maxConsecutiveErrors {
				wp.logger.Warnw("Worker backing off due to consecutive errors",
					"worker_id", id,
					"backoff", backoffDuration,
					"consecutive_errors", errorCount)
				wait = backoffDuration
				backoffDuration = min(backoffDuration*2, maxBackoff)
			}
			timer.Reset(wait)
			continue
		}

		if errorCount > 0 {
			wp.logger.Infow("Worker recovered from errors",
				"worker_id", id,
				"previous_error_count", errorCount)
		}
		errorCount = 0
		backoffDuration = time.Second

		// A full batch means more work is probably waiting
		if report.Processed >= cfg.DrainLimit {
			timer.Reset(0)
			continue
		}
		timer.Reset(interval)
	}
}

func (wp *WorkerPool) drainOnce(ctx context.Context, limit int) (*DrainReport, error) {
	wp.mu.Lock()
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	report, err := wp.drainer.Drain(ctx, limit)
	if report != nil {
		wp.mu.Lock()
		wp.jobsProcessed += report.Processed
		wp.mu.Unlock()
	}
	return report, err
}

// reaper fails expired leases on the configured interval
func (wp *WorkerPool) reaper(ctx context.Context) {
	defer wp.wg.Done()

	interval := wp.Config().ReapInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := wp.Reap(ctx); err != nil && ctx.Err() == nil {
				wp.logger.Warnw("Failed to reap expired jobs", logger.FieldError, err)
			}
			if next := wp.Config().ReapInterval; next > 0 && next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Reap fails every generating job whose lease has expired
func (wp *WorkerPool) Reap(ctx context.Context) ([]*Job, error) {
	q := wp.drainer.Queue()
	jobs, err := q.ReapExpired(ctx, q.Now())
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 {
		wp.logger.Starting("Failed jobs with expired leases", logger.FieldCount, len(jobs))
		for _, job := range jobs {
			wp.drainer.bumpCounters(ctx, job, 0, 1, wp.logger.SugaredLogger)
		}
	}
	wp.metrics.ObserveReaped(len(jobs))
	return jobs, nil
}

// GetQueue returns the job queue
func (wp *WorkerPool) GetQueue() *Queue {
	return wp.drainer.Queue()
}

// Drainer returns the drainer the workers run
func (wp *WorkerPool) Drainer() *Drainer {
	return wp.drainer
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.Config().Workers
}

// JobsProcessed returns how many jobs the pool handled since Start
func (wp *WorkerPool) JobsProcessed() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.jobsProcessed
}

package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/sym"
)

// TickerConfig contains configuration for the Pulse ticker
type TickerConfig struct {
	Spec string // cron expression or descriptor, e.g. "@every 1m", "*/5 * * * *"
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{Spec: "@every 1m"}
}

// Ticker runs Driver.RunTick on a cron cadence inside a long-lived process.
// Serverless deployments call RunTick from the HTTP trigger instead.
type Ticker struct {
	driver *Driver
	store  *Store
	queue  *async.Queue      // For the activity indicator, optional
	pool   *async.WorkerPool // For system metrics in ticker display, optional
	clock  Clock
	spec   string

	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	pulseLog *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
	lastActiveWork  int // Last active work count, to log only on change
	lastReport      *TickReport
}

// NewTicker creates a Pulse ticker. queue and pool may be nil.
func NewTicker(ctx context.Context, driver *Driver, store *Store, queue *async.Queue, pool *async.WorkerPool, clock Clock, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultTickerConfig().Spec
	}

	return &Ticker{
		driver:   driver,
		store:    store,
		queue:    queue,
		pool:     pool,
		clock:    clock,
		spec:     cfg.Spec,
		ctx:      tickerCtx,
		cancel:   cancel,
		pulseLog: logger.AddPulseSymbol(log),
	}
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, logger.FieldError, err)...)
}

// Start schedules the tick. Overlapping ticks are skipped, not queued.
func (t *Ticker) Start() error {
	cl := cronLogger{log: t.pulseLog}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(t.spec, func() { t.Tick() }); err != nil {
		return errors.Wrapf(err, "invalid pulse tick spec %q", t.spec)
	}

	t.mu.Lock()
	t.cron = c
	t.mu.Unlock()

	c.Start()
	t.pulseLog.Infow("Pulse ticker started", "spec", t.spec)
	return nil
}

// Stop gracefully stops the ticker, waiting for a running tick to finish
func (t *Ticker) Stop() {
	t.cancel()

	t.mu.Lock()
	c := t.cron
	t.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	t.pulseLog.Infow("Pulse ticker stopped")
}

// Tick runs one scheduler pass at the clock's current time
func (t *Ticker) Tick() *TickReport {
	now := t.clock.Now()

	t.mu.Lock()
	t.lastTickAt = now
	t.ticksSinceStart++
	tick := t.ticksSinceStart
	t.mu.Unlock()

	report, err := t.driver.RunTick(t.ctx, now)
	if err != nil {
		t.pulseLog.Warnw("Pulse tick error", logger.FieldError, err, "tick", tick)
	}

	t.mu.Lock()
	t.lastReport = report
	t.mu.Unlock()

	t.logNextDue(now)
	return report
}

// LastReport returns the report of the most recent tick
func (t *Ticker) LastReport() *TickReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastReport
}

// logNextDue logs time until the next due schedule when queue activity changes
func (t *Ticker) logNextDue(now time.Time) {
	next, err := t.store.NextDue(t.ctx)
	if err != nil {
		t.pulseLog.Warnw("Failed to get next due schedule", logger.FieldError, err)
		return
	}

	activeWork := 0
	if t.queue != nil {
		if stats, err := t.queue.GetStats(t.ctx); err == nil {
			activeWork = stats.Pending + stats.Generating
		}
	}

	t.mu.Lock()
	hasChanged := activeWork != t.lastActiveWork
	t.lastActiveWork = activeWork
	t.mu.Unlock()
	if !hasChanged {
		return
	}

	// One pulse glyph per five active jobs, capped
	pulseIndicator := ""
	if activeWork > 0 {
		numSymbols := min(activeWork/5+1, 60)
		pulseIndicator = strings.TrimSpace(strings.Repeat(sym.Pulse+" ", numSymbols)) + " "
	}

	if next == nil || next.NextScheduledAt == nil {
		if activeWork > 0 {
			t.pulseLog.Infow(fmt.Sprintf("%sPulse - no active schedules, %d jobs active", pulseIndicator, activeWork))
		} else {
			t.pulseLog.Infow("Pulse - no active schedules")
		}
		return
	}

	timeUntil := max(next.NextScheduledAt.Sub(now), 0)
	msg := fmt.Sprintf("%sPulse - next %s schedule %s in %s", pulseIndicator, next.Kind, next.ID[:min(8, len(next.ID))], timeUntil.Round(time.Second))
	if activeWork > 0 {
		msg += fmt.Sprintf(", %d jobs active", activeWork)
	}

	if t.pool != nil {
		m := t.pool.GetSystemMetrics(t.ctx)
		msg += fmt.Sprintf(" │ Workers: %d/%d active │ Mem: %.1f/%.1fGB (%.0f%%)",
			m.WorkersActive, m.WorkersTotal,
			m.MemoryUsedGB, m.MemoryTotalGB, m.MemoryPercent)
	}

	t.pulseLog.Infow(msg)
}

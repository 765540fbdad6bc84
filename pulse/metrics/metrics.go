// Package metrics exposes scheduler and queue counters in Prometheus format.
// Every method is safe on a nil *Collector so callers can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cadence"

// Collector owns a private registry and the pulse metrics registered on it
type Collector struct {
	reg *prometheus.Registry

	ticks          prometheus.Counter
	tickErrors     prometheus.Counter
	schedules      *prometheus.CounterVec
	jobsEnqueued   prometheus.Counter
	jobsFinished   *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	stepErrors     *prometheus.CounterVec
	jobsReaped     prometheus.Counter
	counterUpdates *prometheus.CounterVec
}

// New creates a collector with process and Go runtime collectors attached
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler ticks run",
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_errors_total",
			Help:      "Scheduler ticks aborted before processing schedules",
		}),
		schedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "schedules_total",
			Help:      "Due schedules handled by ticks, by result",
		}, []string{"result"}),
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_enqueued_total",
			Help:      "Jobs written to the queue by ticks",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_finished_total",
			Help:      "Jobs moved to a terminal status, by handler and status",
		}, []string{"handler", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Wall time from claim to terminal status",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"handler"}),
		stepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_errors_total",
			Help:      "Pipeline step failures, by step and error code",
		}, []string{"step", "code"}),
		jobsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_reaped_total",
			Help:      "Generating jobs failed after their lease expired",
		}),
		counterUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "counter_update_failures_total",
			Help:      "Best-effort schedule counter updates that failed",
		}, []string{"reason"}),
	}

	c.reg.MustRegister(
		c.ticks, c.tickErrors, c.schedules, c.jobsEnqueued,
		c.jobsFinished, c.jobDuration, c.stepErrors, c.jobsReaped, c.counterUpdates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry so callers can attach more collectors
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// ObserveTick records the outcome of one scheduler tick
func (c *Collector) ObserveTick(succeeded, failed, skipped, jobsQueued int) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.schedules.WithLabelValues("succeeded").Add(float64(succeeded))
	c.schedules.WithLabelValues("failed").Add(float64(failed))
	c.schedules.WithLabelValues("skipped").Add(float64(skipped))
	c.jobsEnqueued.Add(float64(jobsQueued))
}

// ObserveTickError records a tick that aborted before touching any schedule
func (c *Collector) ObserveTickError() {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.tickErrors.Inc()
}

// ObserveJob records a job reaching a terminal status
func (c *Collector) ObserveJob(handler, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.jobsFinished.WithLabelValues(handler, status).Inc()
	c.jobDuration.WithLabelValues(handler).Observe(elapsed.Seconds())
}

// ObserveStepError records a failed pipeline step
func (c *Collector) ObserveStepError(step, code string) {
	if c == nil {
		return
	}
	c.stepErrors.WithLabelValues(step, code).Inc()
}

// ObserveReaped records jobs failed by the lease reaper
func (c *Collector) ObserveReaped(n int) {
	if c == nil || n == 0 {
		return
	}
	c.jobsReaped.Add(float64(n))
}

// ObserveCounterUpdateFailure records a schedule counter update that was dropped
func (c *Collector) ObserveCounterUpdateFailure(reason string) {
	if c == nil {
		return
	}
	c.counterUpdates.WithLabelValues(reason).Inc()
}

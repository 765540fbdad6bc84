package generation

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/metrics"
	"github.com/teranos/cadence/pulse/schedule"
)

// Handler adapts the Executor to one async handler name
type Handler struct {
	name     string
	executor *Executor
	queue    *async.Queue
	metrics  *metrics.Collector
	logger   *zap.SugaredLogger
}

// NewHandler creates a handler for name. queue receives progress updates and
// may be nil in tests.
func NewHandler(name string, executor *Executor, queue *async.Queue, m *metrics.Collector, log *zap.SugaredLogger) *Handler {
	return &Handler{
		name:     name,
		executor: executor,
		queue:    queue,
		metrics:  m,
		logger:   logger.AddGenSymbol(log),
	}
}

// Name implements async.JobHandler
func (h *Handler) Name() string {
	return h.name
}

// Execute implements async.JobHandler
func (h *Handler) Execute(ctx context.Context, job *async.Job) (*async.Result, error) {
	var progress ProgressReporter
	if h.queue != nil {
		progress = async.NewJobProgressEmitter(job, h.queue, h.metrics, h.logger)
	}

	out := h.executor.Execute(ctx, job, progress)
	return out.Result(), out.Err
}

// RegisterHandlers registers the character and content handlers
func RegisterHandlers(registry *async.HandlerRegistry, executor *Executor, queue *async.Queue, m *metrics.Collector, log *zap.SugaredLogger) {
	registry.Register(NewHandler(schedule.HandlerCharacterAutogen, executor, queue, m, log))
	registry.Register(NewHandler(schedule.HandlerContentGenerate, executor, queue, m, log))
}

var _ async.JobHandler = (*Handler)(nil)
var _ ProgressReporter = (*async.JobProgressEmitter)(nil)

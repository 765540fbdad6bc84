// Package server exposes the scheduler over HTTP: cron trigger endpoints,
// schedule and job inspection, Prometheus metrics and a live job stream.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/metrics"
	"github.com/teranos/cadence/pulse/schedule"
)

// ServerState tracks the lifecycle for /health and graceful shutdown
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

// Deps are the components the server routes requests to.
// Metrics may be nil.
type Deps struct {
	Config     *am.Config
	Schedules  *schedule.Store
	Executions *schedule.ExecutionStore
	Queue      *async.Queue
	Driver     *schedule.Driver
	Drainer    *async.Drainer
	Metrics    *metrics.Collector
	Clock      schedule.Clock
}

// CadenceServer serves the HTTP surface
type CadenceServer struct {
	cfg        *am.Config
	schedules  *schedule.Store
	executions *schedule.ExecutionStore
	queue      *async.Queue
	driver     *schedule.Driver
	drainer    *async.Drainer
	metrics    *metrics.Collector
	clock      schedule.Clock
	logger     *zap.SugaredLogger

	mux        *http.ServeMux
	httpServer *http.Server
	state      atomic.Int32

	mu      sync.RWMutex
	clients map[*jobStreamClient]bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCadenceServer wires the routes. Nothing listens until Start.
func NewCadenceServer(deps Deps, log *zap.SugaredLogger) *CadenceServer {
	clock := deps.Clock
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &CadenceServer{
		cfg:        deps.Config,
		schedules:  deps.Schedules,
		executions: deps.Executions,
		queue:      deps.Queue,
		driver:     deps.Driver,
		drainer:    deps.Drainer,
		metrics:    deps.Metrics,
		clock:      clock,
		logger:     log.Named("server"),
		mux:        http.NewServeMux(),
		clients:    make(map[*jobStreamClient]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.setupHTTPRoutes()
	return s
}

// Handler returns the routed handler, for tests and embedding
func (s *CadenceServer) Handler() http.Handler {
	return s.mux
}

func (s *CadenceServer) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

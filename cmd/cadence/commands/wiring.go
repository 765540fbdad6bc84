package commands

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/cadence/ai/provider"
	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/entity"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/generation"
	"github.com/teranos/cadence/imaging"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/publish"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/metrics"
	"github.com/teranos/cadence/pulse/schedule"
	"github.com/teranos/cadence/storage/blob"
)

// app holds every long-lived component of one cadence process.
// Collaborators are built once here and injected; nothing below reaches for globals.
type app struct {
	cfg        *am.Config
	db         *sql.DB
	log        *zap.SugaredLogger
	metrics    *metrics.Collector
	schedules  *schedule.Store
	executions *schedule.ExecutionStore
	queue      *async.Queue
	registry   *async.HandlerRegistry
	drainer    *async.Drainer
	driver     *schedule.Driver
	entities   *entity.Store
}

// newStoreApp opens the database and the stores, without generation collaborators
func newStoreApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	conn, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		db:         conn,
		log:        logger.Logger,
		schedules:  schedule.NewStore(conn),
		executions: schedule.NewExecutionStore(conn),
		queue:      async.NewQueue(conn, async.WithLeaseDuration(cfg.Pulse.JobLease())),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		if err := a.metrics.WatchQueue(a.queue); err != nil {
			a.log.Warnw("Queue depth metrics unavailable", logger.FieldError, err)
		}
	}
	return a, nil
}

// newApp wires the full pipeline: stores, collaborators, handlers, drainer and driver
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	a, err := newStoreApp(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.cfg.Validate(); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "invalid configuration")
	}

	blobs, err := blob.New(ctx, a.cfg.Storage)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to open blob storage")
	}
	a.entities = entity.NewStore(a.db, blobs)

	collab, err := a.collaborators()
	if err != nil {
		a.Close()
		return nil, err
	}
	executor := generation.NewExecutor(collab, generation.ConfigFrom(a.cfg), a.log)

	a.registry = async.NewHandlerRegistry()
	generation.RegisterHandlers(a.registry, executor, a.queue, a.metrics, a.log)
	a.drainer = async.NewDrainer(a.queue, a.registry, a.schedules, a.metrics, a.log)

	opts := []schedule.DriverOption{schedule.WithMetrics(a.metrics)}
	if a.cfg.Pulse.KickFirstJob {
		opts = append(opts, schedule.WithKicker(a.drainer))
	}
	a.driver = schedule.NewDriver(a.schedules, a.executions, a.queue, a.log, opts...)
	return a, nil
}

func (a *app) collaborators() (generation.Collaborators, error) {
	text, err := provider.NewTextGenerator(a.cfg, a.log)
	if err != nil {
		return generation.Collaborators{}, err
	}

	images := imaging.NewClient(a.cfg.Imaging, a.log)
	collab := generation.Collaborators{
		Text:     text,
		Images:   images,
		Entities: a.entities,
	}
	if a.cfg.Imaging.FaceSwapModel != "" {
		collab.Faces = images
	}
	// A nil *publish.Client must stay a nil interface
	if pub := publish.NewClient(a.cfg.Publishing, a.log); pub != nil {
		collab.Publisher = pub
	}
	return collab, nil
}

// Close waits for kicked jobs and closes the database
func (a *app) Close() error {
	if a.drainer != nil {
		a.drainer.Wait()
	}
	return a.db.Close()
}

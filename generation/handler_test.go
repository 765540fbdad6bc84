package generation

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	cadencetest "github.com/teranos/cadence/internal/testing"
	"github.com/teranos/cadence/internal/util"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/metrics"
	"github.com/teranos/cadence/pulse/schedule"
)

type harness struct {
	store    *schedule.Store
	queue    *async.Queue
	driver   *schedule.Driver
	drainer  *async.Drainer
	pipeline *testPipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := cadencetest.CreateTestDB(t)
	log := zaptest.NewLogger(t).Sugar()
	m := metrics.New()

	h := &harness{
		store:    schedule.NewStore(conn),
		queue:    async.NewQueue(conn),
		pipeline: newTestPipeline(t, Config{}),
	}
	registry := async.NewHandlerRegistry()
	RegisterHandlers(registry, h.pipeline.executor, h.queue, m, log)

	h.drainer = async.NewDrainer(h.queue, registry, h.store, m, log)
	h.driver = schedule.NewDriver(h.store, schedule.NewExecutionStore(conn), h.queue, log,
		schedule.WithRand(func() *rand.Rand { return util.NewSeededRand(9) }))
	return h
}

var tickAt = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestTickThenDrainCompletesCharacterJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.pipeline.images.failOn[2] = true

	sched := schedule.CreateTestSchedule(t, h.store, &schedule.Schedule{
		Params: schedule.GenerationParams{ImageCount: 3, ProfileTypes: []string{"fitness"}},
	}, tickAt)

	report, err := h.driver.RunTick(ctx, tickAt)
	require.NoError(t, err)
	require.Equal(t, 1, report.JobsQueued)

	drained, err := h.drainer.Drain(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, drained.Succeeded)

	jobs, err := h.queue.ListJobs(ctx, async.ListFilter{ScheduleID: sched.ID})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, async.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Progress.Current)
	assert.Equal(t, 3, job.Progress.Total)
	require.Len(t, job.Warnings, 1)
	assert.Contains(t, job.Warnings[0], "image_generation #2")
	assert.NotEmpty(t, job.ResultRef)

	got, err := h.store.Get(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalRunsCompleted)
	assert.Zero(t, got.TotalJobsFailed)
}

func TestPersistenceFailureFailsJobAndKeepsScheduleAdvanced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.pipeline.entities.failCreate = true

	sched := schedule.CreateTestSchedule(t, h.store, &schedule.Schedule{}, tickAt)

	_, err := h.driver.RunTick(ctx, tickAt)
	require.NoError(t, err)

	drained, err := h.drainer.Drain(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, drained.Failed)

	jobs, err := h.queue.ListJobs(ctx, async.ListFilter{ScheduleID: sched.ID})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, async.JobStatusFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "failed to save character")

	got, err := h.store.Get(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, tickAt.Add(24*time.Hour), *got.NextScheduledAt)
	assert.Equal(t, 1, got.TotalJobsFailed)
	assert.Zero(t, got.TotalRunsCompleted)
}

func TestHandlerNames(t *testing.T) {
	registry := async.NewHandlerRegistry()
	RegisterHandlers(registry, newTestPipeline(t, Config{}).executor, nil, nil, zaptest.NewLogger(t).Sugar())
	assert.Equal(t, []string{schedule.HandlerCharacterAutogen, schedule.HandlerContentGenerate}, registry.Names())
}

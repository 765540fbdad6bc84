package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveTick(1, 2, 3, 4)
		c.ObserveTickError()
		c.ObserveJob("content.generate", "completed", time.Second)
		c.ObserveStepError("image_generation", "timeout")
		c.ObserveReaped(3)
		c.ObserveCounterUpdateFailure("database")
		require.NoError(t, c.WatchQueue(nil))
	})
	assert.Nil(t, c.Registry())
}

func TestObserveTick(t *testing.T) {
	c := New()
	c.ObserveTick(2, 1, 1, 5)
	c.ObserveTick(1, 0, 0, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ticks))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.schedules.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.schedules.WithLabelValues("skipped")))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.jobsEnqueued))
}

func TestObserveJob(t *testing.T) {
	c := New()
	c.ObserveJob("character.autogen", "completed", 3*time.Second)
	c.ObserveJob("character.autogen", "failed", time.Second)
	c.ObserveJob("character.autogen", "completed", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobsFinished.WithLabelValues("character.autogen", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsFinished.WithLabelValues("character.autogen", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.jobDuration))
}

type fakeDepths struct {
	depths map[string]int
	err    error
}

func (f fakeDepths) Depths(context.Context) (map[string]int, error) {
	return f.depths, f.err
}

func TestWatchQueue(t *testing.T) {
	c := New()
	require.NoError(t, c.WatchQueue(fakeDepths{depths: map[string]int{"pending": 4, "generating": 1}}))

	expected := `
# HELP cadence_queue_jobs Jobs currently stored, by status
# TYPE cadence_queue_jobs gauge
cadence_queue_jobs{status="generating"} 1
cadence_queue_jobs{status="pending"} 4
`
	require.NoError(t, testutil.GatherAndCompare(c.reg, strings.NewReader(expected), "cadence_queue_jobs"))
}

func TestWatchQueueReportsReadFailure(t *testing.T) {
	c := New()
	require.NoError(t, c.WatchQueue(fakeDepths{err: errors.New("database is locked")}))

	expected := `
# HELP cadence_queue_scrape_ok Whether the last queue depth read succeeded (1=yes, 0=no)
# TYPE cadence_queue_scrape_ok gauge
cadence_queue_scrape_ok 0
`
	require.NoError(t, testutil.GatherAndCompare(c.reg, strings.NewReader(expected), "cadence_queue_scrape_ok"))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := New()
	c.ObserveReaped(2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "cadence_queue_jobs_reaped_total 2")
}

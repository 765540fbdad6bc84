package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/cadence/am"
	cadencetest "github.com/teranos/cadence/internal/testing"
	"github.com/teranos/cadence/internal/util"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/metrics"
	"github.com/teranos/cadence/pulse/schedule"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type okHandler struct{ name string }

func (h okHandler) Name() string { return h.name }

func (h okHandler) Execute(_ context.Context, job *async.Job) (*async.Result, error) {
	return &async.Result{ResultRef: "artifact-" + job.ShortID()}, nil
}

type testServer struct {
	*CadenceServer
	cfg *am.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn := cadencetest.CreateTestDB(t)
	log := zaptest.NewLogger(t).Sugar()
	m := metrics.New()

	store := schedule.NewStore(conn)
	executions := schedule.NewExecutionStore(conn)
	queue := async.NewQueue(conn)

	registry := async.NewHandlerRegistry()
	registry.Register(okHandler{name: schedule.HandlerCharacterAutogen})
	registry.Register(okHandler{name: schedule.HandlerContentGenerate})

	cfg := &am.Config{}
	cfg.Pulse.DrainLimit = 5

	s := NewCadenceServer(Deps{
		Config:     cfg,
		Schedules:  store,
		Executions: executions,
		Queue:      queue,
		Driver: schedule.NewDriver(store, executions, queue, log,
			schedule.WithMetrics(m), schedule.WithRand(func() *rand.Rand { return util.NewSeededRand(3) })),
		Drainer: async.NewDrainer(queue, registry, store, m, log),
		Metrics: m,
		Clock:   schedule.FixedClock(testNow),
	}, log)
	t.Cleanup(func() { s.cancel() })
	return &testServer{CadenceServer: s, cfg: cfg}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) dueSchedule(t *testing.T, owner string) *schedule.Schedule {
	return schedule.CreateTestSchedule(t, ts.schedules, &schedule.Schedule{
		OwnerID:   owner,
		Frequency: schedule.Frequency{Type: schedule.FrequencyDaily, Value: 2},
		Params:    schedule.GenerationParams{ImageCount: 1},
	}, testNow.Add(-time.Minute))
}

func TestTickThenDrain(t *testing.T) {
	ts := newTestServer(t)
	sched := ts.dueSchedule(t, "owner-1")

	rec := ts.do(t, http.MethodPost, "/api/pulse/tick", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tick := decode[tickResponse](t, rec)
	assert.Equal(t, 1, tick.Report.Succeeded)
	assert.Equal(t, 2, tick.Report.JobsQueued)

	rec = ts.do(t, http.MethodPost, "/api/pulse/drain?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	drain := decode[drainResponse](t, rec)
	assert.Equal(t, 1, drain.Report.Processed)
	assert.Equal(t, 1, drain.Report.Succeeded)

	// Hosted cron services trigger with GET
	rec = ts.do(t, http.MethodGet, "/api/pulse/drain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[drainResponse](t, rec).Report.Processed)

	rec = ts.do(t, http.MethodGet, "/api/pulse/jobs?status=completed&schedule_id="+sched.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[listJobsResponse](t, rec)
	assert.Equal(t, 2, jobs.Count)
	require.NotNil(t, jobs.Stats)
	assert.Equal(t, 2, jobs.Stats.Completed)

	rec = ts.do(t, http.MethodGet, "/api/pulse/jobs/"+jobs.Jobs[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[async.Job](t, rec)
	assert.True(t, strings.HasPrefix(job.ResultRef, "artifact-"))
}

func TestDrainRejectsBadLimit(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/pulse/drain?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[drainResponse](t, rec)
	assert.NotNil(t, resp.Report)
	assert.Contains(t, resp.Error, "limit")
}

func TestCronSecret(t *testing.T) {
	ts := newTestServer(t)
	ts.cfg.Server.CronSecret = "s3cret"

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/pulse/tick", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		ts.do(t, http.MethodPost, "/api/pulse/tick", nil, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPost, "/api/pulse/tick", nil, "Authorization", "Bearer s3cret").Code)

	// Reads stay open
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/pulse/schedules", nil).Code)
}

func TestScheduleCRUD(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/pulse/schedules", map[string]interface{}{
		"owner_id":  "owner-9",
		"target_id": "char-1",
		"kind":      "content",
		"frequency": map[string]interface{}{"type": "time_slots", "time_slots": []string{"09:00", "18:00"}},
		"params":    map[string]interface{}{"themes": []string{"beach"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[schedule.Schedule](t, rec)
	assert.True(t, created.IsActive)
	require.NotNil(t, created.NextScheduledAt)
	assert.Equal(t, time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC), *created.NextScheduledAt)

	rec = ts.do(t, http.MethodGet, "/api/pulse/schedules?owner_id=owner-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[listSchedulesResponse](t, rec).Count)

	rec = ts.do(t, http.MethodPatch, "/api/pulse/schedules/"+created.ID, map[string]bool{"is_active": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paused := decode[schedule.Schedule](t, rec)
	assert.False(t, paused.IsActive)
	assert.Nil(t, paused.NextScheduledAt)

	rec = ts.do(t, http.MethodGet, "/api/pulse/schedules/"+created.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/pulse/schedules/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/pulse/schedules/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/pulse/schedules/"+created.ID+"/executions", nil).Code)
}

func TestScheduleValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing owner", map[string]interface{}{"kind": "content"}},
		{"bad frequency", map[string]interface{}{
			"owner_id": "o", "kind": "character_autogen",
			"frequency": map[string]interface{}{"type": "daily", "value": 0},
		}},
		{"unknown kind", map[string]interface{}{
			"owner_id": "o", "kind": "podcast",
			"frequency": map[string]interface{}{"type": "daily", "value": 1},
		}},
		{"unknown field", map[string]interface{}{"owner_id": "o", "colour": "red"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/pulse/schedules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := ts.do(t, http.MethodPatch, "/api/pulse/schedules/missing", map[string]bool{"is_active": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPatch, "/api/pulse/schedules/missing", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/pulse/jobs?status=exploded", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health, "queue")

	ts.dueSchedule(t, "owner-1")
	ts.do(t, http.MethodPost, "/api/pulse/tick", nil)

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cadence_")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)
	ts.cfg.Server.AllowedOrigins = []string{"https://studio.example.com"}

	rec := ts.do(t, http.MethodOptions, "/api/pulse/schedules", nil, "Origin", "https://studio.example.com")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://studio.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = ts.do(t, http.MethodGet, "/api/pulse/schedules", nil, "Origin", "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	for _, path := range []string{"/api/pulse/schedules/abc", "/api/pulse/tick", "/api/pulse/jobs/abc", "/ws/jobs"} {
		rec = ts.do(t, http.MethodOptions, path, nil,
			"Origin", "https://studio.example.com",
			"Access-Control-Request-Method", http.MethodPatch,
		)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "https://studio.example.com", rec.Header().Get("Access-Control-Allow-Origin"), path)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch, path)
	}
}

func TestJobStream(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/jobs?owner_id=owner-2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.dueSchedule(t, "owner-1")
	mine := ts.dueSchedule(t, "owner-2")
	ts.do(t, http.MethodPost, "/api/pulse/tick", nil)
	ts.do(t, http.MethodPost, "/api/pulse/drain?limit=10", nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update jobUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "job_update", update.Type)
	assert.Equal(t, "owner-2", update.Job.OwnerID)
	assert.Equal(t, mine.ID, update.Job.ScheduleID)

	conn.Close()
	assert.Eventually(t, func() bool { return ts.clientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeAndStop(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ts.Serve(ctx, ln) }()

	healthURL := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, ServerStateStopped, ts.getState())
}

package async

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cadence/errors"
	cadencetest "github.com/teranos/cadence/internal/testing"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T, opts ...QueueOption) *Queue {
	t.Helper()
	clock := testNow
	opts = append([]QueueOption{WithNow(func() time.Time { return clock })}, opts...)
	return NewQueue(cadencetest.CreateTestDB(t), opts...)
}

func specs(n int) []JobSpec {
	out := make([]JobSpec, n)
	for i := range out {
		out[i] = JobSpec{
			ScheduleID:    "sched-1",
			OwnerID:       "owner-1",
			HandlerName:   "content.generate",
			Payload:       json.RawMessage(`{"theme":"beach"}`),
			ProgressTotal: 3,
		}
	}
	return out
}

func TestEnqueueBatchClaimsInOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, WithLeaseDuration(10*time.Minute))

	ids, err := q.EnqueueBatch(ctx, specs(3))
	require.NoError(t, err)
	require.Len(t, ids, 3)

	claimed, err := q.ClaimPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, ids[0], claimed[0].ID)
	assert.Equal(t, ids[1], claimed[1].ID)

	for _, job := range claimed {
		assert.Equal(t, JobStatusGenerating, job.Status)
		require.NotNil(t, job.StartedAt)
		assert.True(t, job.StartedAt.Equal(testNow))
		require.NotNil(t, job.LeaseExpiresAt)
		assert.True(t, job.LeaseExpiresAt.Equal(testNow.Add(10*time.Minute)))
		assert.Equal(t, 3, job.Progress.Total)
		assert.JSONEq(t, `{"theme":"beach"}`, string(job.Payload))
	}

	rest, err := q.ClaimPending(ctx, 5)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[2], rest[0].ID)

	empty, err := q.ClaimPending(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClaimPendingConcurrentCallersGetDisjointSets(t *testing.T) {
	ctx := context.Background()
	conn := cadencetest.CreateTestFileDB(t)
	q := NewQueue(conn)

	_, err := q.EnqueueBatch(ctx, specs(8))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]*Job, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = q.ClaimPending(ctx, 5)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 8, len(results[0])+len(results[1]))

	seen := make(map[string]bool)
	for _, set := range results {
		for _, job := range set {
			assert.False(t, seen[job.ID], "job %s claimed twice", job.ID)
			seen[job.ID] = true
		}
	}
	assert.Len(t, seen, 8)
}

func TestEnqueueBatchRejectsInvalidSpecWithoutWriting(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	batch := specs(2)
	batch[1].Payload = json.RawMessage(`{not json`)
	_, err := q.EnqueueBatch(ctx, batch)
	require.Error(t, err)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestEnqueueBatchRollsBackOnInsertFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO generation_jobs")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	q := NewQueue(conn)
	ids, err := q.EnqueueBatch(context.Background(), specs(3))
	require.Error(t, err)
	assert.Nil(t, ids)
	assert.Contains(t, err.Error(), "disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompletedTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	ids, err := q.EnqueueBatch(ctx, specs(1))
	require.NoError(t, err)
	_, err = q.ClaimPending(ctx, 1)
	require.NoError(t, err)

	changed, err := q.MarkCompleted(ctx, ids[0], "char-1", []string{"face_swap: timeout"})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = q.MarkCompleted(ctx, ids[0], "char-2", nil)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = q.MarkFailed(ctx, ids[0], "late failure", nil)
	require.NoError(t, err)
	assert.False(t, changed)

	job, err := q.GetJob(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, "char-1", job.ResultRef)
	assert.Equal(t, []string{"face_swap: timeout"}, job.Warnings)
	assert.Empty(t, job.Error)
	assert.Nil(t, job.LeaseExpiresAt)
	require.NotNil(t, job.CompletedAt)
}

func TestMarkCompletedRequiresClaim(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	ids, err := q.EnqueueBatch(ctx, specs(1))
	require.NoError(t, err)

	_, err = q.MarkCompleted(ctx, ids[0], "char-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	job, err := q.GetJob(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
}

func TestMarkFailedFromPending(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	ids, err := q.EnqueueBatch(ctx, specs(1))
	require.NoError(t, err)

	_, err = q.MarkFailed(ctx, ids[0], "character not found", nil)
	require.NoError(t, err)

	job, err := q.GetJob(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "character not found", job.Error)

	claimed, err := q.ClaimPending(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestUnknownJobIsNotFound(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, completeErr := q.MarkCompleted(ctx, "missing", "", nil)
	_, failErr := q.MarkFailed(ctx, "missing", "boom", nil)
	for name, err := range map[string]error{
		"complete": completeErr,
		"fail":     failErr,
		"progress": q.UpdateProgress(ctx, "missing", 1),
	} {
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrJobNotFound), name)
		assert.True(t, errors.IsNotFoundError(err), name)
	}

	_, err := q.GetJob(ctx, "missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))

	_, err = q.ClaimByID(ctx, "missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestClaimByID(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	ids, err := q.EnqueueBatch(ctx, specs(2))
	require.NoError(t, err)

	job, err := q.ClaimByID(ctx, ids[1])
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobStatusGenerating, job.Status)

	again, err := q.ClaimByID(ctx, ids[1])
	require.NoError(t, err)
	assert.Nil(t, again)

	rest, err := q.ClaimPending(ctx, 5)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].ID)
}

func TestUpdateProgressExtendsLease(t *testing.T) {
	ctx := context.Background()
	clock := testNow
	q := NewQueue(cadencetest.CreateTestDB(t),
		WithNow(func() time.Time { return clock }),
		WithLeaseDuration(time.Minute),
	)

	ids, err := q.EnqueueBatch(ctx, specs(1))
	require.NoError(t, err)
	_, err = q.ClaimPending(ctx, 1)
	require.NoError(t, err)

	clock = testNow.Add(45 * time.Second)
	require.NoError(t, q.UpdateProgress(ctx, ids[0], 2))

	job, err := q.GetJob(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 2, job.Progress.Current)
	require.NotNil(t, job.LeaseExpiresAt)
	assert.True(t, job.LeaseExpiresAt.Equal(clock.Add(time.Minute)))

	// Past the original lease but inside the extended one
	reaped, err := q.ReapExpired(ctx, testNow.Add(90*time.Second))
	require.NoError(t, err)
	assert.Empty(t, reaped)
}

func TestUpdateProgressOnTerminalJobIsIgnored(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	ids, err := q.EnqueueBatch(ctx, specs(1))
	require.NoError(t, err)
	_, err = q.MarkFailed(ctx, ids[0], "boom", nil)
	require.NoError(t, err)

	assert.NoError(t, q.UpdateProgress(ctx, ids[0], 1))
}

func TestReapExpired(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, WithLeaseDuration(30*time.Minute))

	ids, err := q.EnqueueBatch(ctx, specs(3))
	require.NoError(t, err)
	_, err = q.ClaimPending(ctx, 2)
	require.NoError(t, err)

	reaped, err := q.ReapExpired(ctx, testNow.Add(29*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, reaped)

	reaped, err = q.ReapExpired(ctx, testNow.Add(31*time.Minute))
	require.NoError(t, err)
	require.Len(t, reaped, 2)
	for _, job := range reaped {
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Equal(t, LeaseExpiredMessage, job.Error)
	}

	pending, err := q.GetJob(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, pending.Status)
}

func TestListJobsAndPurge(t *testing.T) {
	ctx := context.Background()
	clock := testNow
	q := NewQueue(cadencetest.CreateTestDB(t), WithNow(func() time.Time { return clock }))

	ids, err := q.EnqueueBatch(ctx, specs(3))
	require.NoError(t, err)
	other := specs(1)
	other[0].ScheduleID = "sched-2"
	_, err = q.EnqueueBatch(ctx, other)
	require.NoError(t, err)

	_, err = q.MarkFailed(ctx, ids[0], "boom", nil)
	require.NoError(t, err)

	bySchedule, err := q.ListJobs(ctx, ListFilter{ScheduleID: "sched-1"})
	require.NoError(t, err)
	assert.Len(t, bySchedule, 3)
	assert.Equal(t, ids[2], bySchedule[0].ID, "newest first")

	failed, err := q.ListJobs(ctx, ListFilter{Status: JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, ids[0], failed[0].ID)

	limited, err := q.ListJobs(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	n, err := q.PurgeTerminal(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, n, "failed at testNow is not older than testNow")

	n, err = q.PurgeTerminal(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 3, stats.Total)

	depths, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depths["pending"])
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	ch := q.Subscribe()
	defer q.Unsubscribe(ch)

	ids, err := q.EnqueueBatch(ctx, specs(1))
	require.NoError(t, err)

	got := <-ch
	assert.Equal(t, ids[0], got.ID)
	assert.Equal(t, JobStatusPending, got.Status)

	_, err = q.ClaimPending(ctx, 1)
	require.NoError(t, err)
	got = <-ch
	assert.Equal(t, JobStatusGenerating, got.Status)

	_, err = q.MarkCompleted(ctx, ids[0], "char-1", nil)
	require.NoError(t, err)
	got = <-ch
	assert.Equal(t, JobStatusCompleted, got.Status)
	assert.Equal(t, "char-1", got.ResultRef)
}

func TestJobSpecValidate(t *testing.T) {
	assert.Error(t, JobSpec{OwnerID: "o"}.Validate())
	assert.Error(t, JobSpec{HandlerName: "h"}.Validate())
	assert.NoError(t, JobSpec{OwnerID: "o", HandlerName: "h"}.Validate())
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusGenerating.IsTerminal())
	assert.True(t, IsValidStatus("pending"))
	assert.False(t, IsValidStatus("running"))
	assert.Equal(t, 50.0, Progress{Current: 1, Total: 2}.Percentage())
	assert.Zero(t, Progress{}.Percentage())
}

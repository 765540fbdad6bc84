package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cadencetest "github.com/teranos/cadence/internal/testing"
)

func TestExecutionStoreRecordAndList(t *testing.T) {
	conn := cadencetest.CreateTestDB(t)
	store := NewStore(conn)
	executions := NewExecutionStore(conn)
	ctx := context.Background()

	sched := CreateTestSchedule(t, store, &Schedule{}, testNow)

	completed := testNow.Add(40 * time.Millisecond)
	queued := &Execution{
		ScheduleID:  sched.ID,
		Status:      ExecutionStatusQueued,
		StartedAt:   testNow,
		CompletedAt: &completed,
		DurationMs:  40,
		JobsQueued:  2,
		JobIDs:      []string{"job-a", "job-b"},
	}
	require.NoError(t, executions.Record(ctx, queued))
	assert.NotEmpty(t, queued.ID)
	assert.Equal(t, testNow, queued.CreatedAt)

	failed := &Execution{
		ScheduleID:   sched.ID,
		Status:       ExecutionStatusFailed,
		StartedAt:    testNow.Add(time.Hour),
		ErrorMessage: "database is locked",
	}
	require.NoError(t, executions.Record(ctx, failed))

	list, err := executions.List(ctx, sched.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, failed.ID, list[0].ID, "newest first")
	assert.Equal(t, ExecutionStatusFailed, list[0].Status)
	assert.Equal(t, "database is locked", list[0].ErrorMessage)
	assert.Nil(t, list[0].CompletedAt)
	assert.Empty(t, list[0].JobIDs)

	assert.Equal(t, queued.ID, list[1].ID)
	assert.Equal(t, []string{"job-a", "job-b"}, list[1].JobIDs)
	assert.Equal(t, 2, list[1].JobsQueued)
	assert.Equal(t, int64(40), list[1].DurationMs)
	require.NotNil(t, list[1].CompletedAt)
	assert.Equal(t, completed, *list[1].CompletedAt)

	limited, err := executions.List(ctx, sched.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestExecutionStoreRejectsUnknownSchedule(t *testing.T) {
	executions := NewExecutionStore(cadencetest.CreateTestDB(t))

	err := executions.Record(context.Background(), &Execution{
		ScheduleID: "missing",
		Status:     ExecutionStatusQueued,
		StartedAt:  testNow,
	})
	assert.Error(t, err)
}

func TestExecutionStoreCleanup(t *testing.T) {
	conn := cadencetest.CreateTestDB(t)
	store := NewStore(conn)
	executions := NewExecutionStore(conn)
	ctx := context.Background()

	sched := CreateTestSchedule(t, store, &Schedule{}, testNow)
	for i := 0; i < 5; i++ {
		require.NoError(t, executions.Record(ctx, &Execution{
			ScheduleID: sched.ID,
			Status:     ExecutionStatusQueued,
			StartedAt:  testNow.Add(-time.Duration(i) * 24 * time.Hour),
		}))
	}

	deleted, err := executions.Cleanup(ctx, testNow.Add(-36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	remaining, err := executions.List(ctx, sched.ID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

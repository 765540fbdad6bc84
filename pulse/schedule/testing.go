package schedule

import (
	"context"
	"testing"
	"time"
)

// CreateTestSchedule inserts sched due at dueAt and fails the test on error.
// The schedule is always created active; zero fields get an owner, a kind
// and a daily(1) frequency.
func CreateTestSchedule(t *testing.T, store *Store, sched *Schedule, dueAt time.Time) *Schedule {
	t.Helper()

	if sched.OwnerID == "" {
		sched.OwnerID = "owner-1"
	}
	if sched.Kind == "" {
		sched.Kind = KindCharacterAutogen
	}
	if sched.Frequency.Type == "" {
		sched.Frequency = Frequency{Type: FrequencyDaily, Value: 1}
	}
	if sched.Kind == KindContent && sched.TargetID == "" {
		sched.TargetID = "char-1"
	}
	sched.IsActive = true
	due := dueAt.UTC()
	sched.NextScheduledAt = &due

	if err := store.Create(context.Background(), sched, dueAt.Add(-time.Hour)); err != nil {
		t.Fatalf("Failed to create test schedule: %v", err)
	}
	return sched
}

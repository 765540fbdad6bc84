package schedule

import "time"

// Execution records one tick's handling of a due schedule: which jobs it
// queued, or why enqueueing failed. Lost compare-and-set claims leave no row.
type Execution struct {
	ID           string     `json:"id"`
	ScheduleID   string     `json:"schedule_id"`
	Status       string     `json:"status"` // "queued", "failed"
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	JobsQueued   int        `json:"jobs_queued"`
	JobIDs       []string   `json:"job_ids,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Execution status constants for type safety
const (
	ExecutionStatusQueued = "queued"
	ExecutionStatusFailed = "failed"
)

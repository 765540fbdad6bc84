// Package async is the durable generation work queue: jobs are enqueued in
// batches, claimed exclusively, executed by registered handlers and moved to
// a terminal status exactly once.
package async

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/cadence/errors"
)

// JobStatus represents the current state of a job.
// The lifecycle is linear: pending → generating → completed | failed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusGenerating JobStatus = "generating"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusGenerating, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// ErrJobNotFound is returned for operations on an id the queue has never seen
var ErrJobNotFound = errors.Wrap(errors.ErrNotFound, "job not found")

// ErrJobTerminal reports a result that arrived after the job already ended,
// typically because its lease expired and the reaper failed it
var ErrJobTerminal = errors.New("job already terminal")

// Progress represents job progress information
type Progress struct {
	Current int `json:"current"` // Completed items (images)
	Total   int `json:"total"`   // Requested items
}

// Percentage calculates progress as a percentage (0-100)
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Job is one unit of generation work
type Job struct {
	ID             string          `json:"id"`
	ScheduleID     string          `json:"schedule_id,omitempty"` // empty for manually triggered work
	OwnerID        string          `json:"owner_id"`
	HandlerName    string          `json:"handler_name"`      // "character.autogen", "content.generate"
	Payload        json.RawMessage `json:"payload,omitempty"` // handler-owned parameters
	Status         JobStatus       `json:"status"`
	Progress       Progress        `json:"progress"`
	ResultRef      string          `json:"result_ref,omitempty"`
	Error          string          `json:"error,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"` // non-fatal step errors
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// JobSpec describes a job to enqueue
type JobSpec struct {
	ScheduleID    string
	OwnerID       string
	HandlerName   string
	Payload       json.RawMessage
	ProgressTotal int
}

// Validate checks the fields every job needs
func (s JobSpec) Validate() error {
	if s.HandlerName == "" {
		return errors.New("handler name cannot be empty")
	}
	if s.OwnerID == "" {
		return errors.New("owner id cannot be empty")
	}
	if len(s.Payload) > 0 && !json.Valid(s.Payload) {
		return errors.Newf("payload for %s is not valid JSON", s.HandlerName)
	}
	return nil
}

// newJob builds a pending job from a spec
func newJob(spec JobSpec, now time.Time) *Job {
	return &Job{
		ID:          uuid.NewString(),
		ScheduleID:  spec.ScheduleID,
		OwnerID:     spec.OwnerID,
		HandlerName: spec.HandlerName,
		Payload:     spec.Payload,
		Status:      JobStatusPending,
		Progress:    Progress{Total: spec.ProgressTotal},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ShortID returns the first eight characters of the id for log lines
func (j *Job) ShortID() string {
	if len(j.ID) <= 8 {
		return j.ID
	}
	return j.ID[:8]
}

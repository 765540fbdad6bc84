package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/teranos/cadence/errors"
)

const (
	// DefaultLeaseDuration bounds how long a claimed job may go without a heartbeat
	DefaultLeaseDuration = 30 * time.Minute
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Queue is the durable work queue shared by every invocation. All coordination
// happens in the database; the in-process state is only the subscriber list.
type Queue struct {
	store *Store
	lease time.Duration
	now   func() time.Time

	mu          sync.RWMutex
	subscribers []chan *Job // Channels to notify of job updates
}

// QueueOption configures a Queue
type QueueOption func(*Queue)

// WithLeaseDuration sets how long a claim stays valid without a progress heartbeat
func WithLeaseDuration(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.lease = d
		}
	}
}

// WithNow replaces the queue's time source
func WithNow(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB, opts ...QueueOption) *Queue {
	q := &Queue{
		store:       NewStore(db),
		lease:       DefaultLeaseDuration,
		now:         func() time.Time { return time.Now().UTC() },
		subscribers: make([]chan *Job, 0),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Store exposes the underlying job store
func (q *Queue) Store() *Store {
	return q.store
}

// LeaseDuration returns the claim lease
func (q *Queue) LeaseDuration() time.Duration {
	return q.lease
}

// EnqueueBatch inserts one pending job per spec, all or nothing, and returns
// the new ids in spec order.
func (q *Queue) EnqueueBatch(ctx context.Context, specs []JobSpec) ([]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	now := q.now()
	jobs := make([]*Job, 0, len(specs))
	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, errors.Wrapf(err, "job spec %d", i)
		}
		// Strictly increasing created_at keeps claim order equal to enqueue order
		jobs = append(jobs, newJob(spec, now.Add(time.Duration(i))))
	}

	if err := q.store.InsertBatch(ctx, jobs); err != nil {
		err = errors.Wrap(err, "failed to enqueue jobs")
		return nil, errors.WithDetailf(err, "Batch size: %d", len(jobs))
	}

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
		q.notifySubscribers(job)
	}
	return ids, nil
}

// ClaimPending atomically claims up to limit of the oldest pending jobs
func (q *Queue) ClaimPending(ctx context.Context, limit int) ([]*Job, error) {
	now := q.now()
	jobs, err := q.store.ClaimPending(ctx, limit, now, now.Add(q.lease))
	if err != nil {
		return nil, errors.WithDetailf(err, "Claim limit: %d", limit)
	}
	for _, job := range jobs {
		q.notifySubscribers(job)
	}
	return jobs, nil
}

// ClaimByID claims a specific pending job. It returns (nil, nil) when another
// worker got there first.
func (q *Queue) ClaimByID(ctx context.Context, id string) (*Job, error) {
	now := q.now()
	job, err := q.store.ClaimByID(ctx, id, now, now.Add(q.lease))
	if err != nil || job == nil {
		return nil, err
	}
	q.notifySubscribers(job)
	return job, nil
}

// MarkCompleted finishes a generating job and reports whether it did. On a job
// that is already terminal it is a no-op returning false; on a pending job it
// returns ErrInvalidTransition.
func (q *Queue) MarkCompleted(ctx context.Context, id, resultRef string, warnings []string) (bool, error) {
	changed, err := q.store.Complete(ctx, id, resultRef, warnings, q.now())
	if err != nil || !changed {
		return false, err
	}
	q.notifyByID(ctx, id)
	return true, nil
}

// MarkFailed fails a pending or generating job and reports whether it did. On a
// job that is already terminal it is a no-op returning false.
func (q *Queue) MarkFailed(ctx context.Context, id, message string, warnings []string) (bool, error) {
	changed, err := q.store.Fail(ctx, id, message, warnings, q.now())
	if err != nil || !changed {
		return false, err
	}
	q.notifyByID(ctx, id)
	return true, nil
}

// UpdateProgress records progress and extends the claim lease
func (q *Queue) UpdateProgress(ctx context.Context, id string, count int) error {
	now := q.now()
	if err := q.store.UpdateProgress(ctx, id, count, now.Add(q.lease), now); err != nil {
		return err
	}
	q.notifyByID(ctx, id)
	return nil
}

// Now returns the queue clock that stamps claims and leases
func (q *Queue) Now() time.Time {
	return q.now()
}

// ReapExpired fails generating jobs whose lease ended before now
func (q *Queue) ReapExpired(ctx context.Context, now time.Time) ([]*Job, error) {
	jobs, err := q.store.ReapExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		q.notifySubscribers(job)
	}
	return jobs, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// ListJobs returns jobs newest first
func (q *Queue) ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error) {
	return q.store.ListJobs(ctx, filter)
}

// PurgeTerminal deletes terminal jobs that finished before olderThan
func (q *Queue) PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	return q.store.PurgeTerminal(ctx, olderThan)
}

// QueueStats returns statistics about the queue
type QueueStats struct {
	Pending    int `json:"pending"`
	Generating int `json:"generating"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats(ctx context.Context) (*QueueStats, error) {
	counts, err := q.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{
		Pending:    counts[JobStatusPending],
		Generating: counts[JobStatusGenerating],
		Completed:  counts[JobStatusCompleted],
		Failed:     counts[JobStatusFailed],
	}
	stats.Total = stats.Pending + stats.Generating + stats.Completed + stats.Failed
	return stats, nil
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method; callers close it themselves.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

func (q *Queue) hasSubscribers() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.subscribers) > 0
}

// notifyByID re-reads the job so subscribers see the stored state
func (q *Queue) notifyByID(ctx context.Context, id string) {
	if !q.hasSubscribers() {
		return
	}
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return
	}
	q.notifySubscribers(job)
}

// notifySubscribers sends job updates to all subscribers.
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (q *Queue) notifySubscribers(job *Job) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, ch := range q.subscribers {
		select {
		case ch <- job:
		default:
			// Channel full, skip
		}
	}
}

// Depths counts jobs per status for the metrics scrape
func (q *Queue) Depths(ctx context.Context) (map[string]int, error) {
	counts, err := q.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	depths := make(map[string]int, len(counts))
	for status, n := range counts {
		depths[string(status)] = n
	}
	return depths, nil
}

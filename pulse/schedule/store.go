package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
)

// Store handles persistence of schedules
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle so sibling stores can share it
func (s *Store) DB() *sql.DB {
	return s.db
}

// Create validates and inserts a schedule. An empty ID is filled with a uuid.
// An active schedule without NextScheduledAt gets ComputeNext(frequency, now).
func (s *Store) Create(ctx context.Context, sched *Schedule, now time.Time) error {
	if !sched.Kind.IsValid() {
		return errors.NewInvalidRequestError("unknown schedule kind %q", sched.Kind)
	}
	if sched.OwnerID == "" {
		return errors.NewInvalidRequestError("schedule owner_id cannot be empty")
	}
	if sched.Kind == KindContent && sched.TargetID == "" {
		return errors.NewInvalidRequestError("content schedules need a target character id")
	}
	if err := sched.Frequency.Validate(); err != nil {
		return err
	}

	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	if sched.Frequency.Timezone == "" {
		sched.Frequency.Timezone = "UTC"
	}
	if sched.IsActive && sched.NextScheduledAt == nil {
		next := ComputeNext(sched.Frequency, now)
		sched.NextScheduledAt = &next
	}
	sched.CreatedAt = now.UTC()
	sched.UpdatedAt = now.UTC()

	slots, err := encodeSlots(sched.Frequency.TimeSlots)
	if err != nil {
		return err
	}
	params, err := json.Marshal(sched.Params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal params")
	}

	var targetID sql.NullString
	if sched.TargetID != "" {
		targetID = sql.NullString{String: sched.TargetID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID,
		sched.OwnerID,
		targetID,
		sched.Kind,
		sched.IsActive,
		sched.Frequency.Type,
		sched.Frequency.Value,
		slots,
		sched.Frequency.Timezone,
		db.FormatTimePtr(sched.LastExecutedAt),
		db.FormatTimePtr(sched.NextScheduledAt),
		sched.TotalRunsCompleted,
		sched.TotalJobsFailed,
		string(params),
		db.FormatTime(sched.CreatedAt),
		db.FormatTime(sched.UpdatedAt),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create schedule")
		return errors.WithDetailf(err, "Schedule ID: %s", sched.ID)
	}
	return nil
}

// Get retrieves a schedule by ID
func (s *Store) Get(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("schedule %s not found", id)
		}
		return nil, errors.Wrapf(err, "failed to get schedule %s", id)
	}
	return sched, nil
}

// List returns schedules ordered by creation time. An empty ownerID lists every owner.
func (s *Store) List(ctx context.Context, ownerID string) ([]*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	var args []interface{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	return scanSchedules(rows)
}

// FindDue returns active schedules whose next_scheduled_at is at or before now,
// most overdue first.
func (s *Store) FindDue(ctx context.Context, now time.Time) ([]*Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE is_active = 1
		  AND next_scheduled_at IS NOT NULL
		  AND next_scheduled_at <= ?
		ORDER BY next_scheduled_at ASC, id ASC`,
		db.FormatTime(now),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query due schedules")
	}
	return scanSchedules(rows)
}

// NextDue returns the active schedule that runs soonest, or nil when none is active
func (s *Store) NextDue(ctx context.Context) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE is_active = 1 AND next_scheduled_at IS NOT NULL
		ORDER BY next_scheduled_at ASC
		LIMIT 1`)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next due schedule")
	}
	return sched, nil
}

// Advance claims the period that was due at expectedNext: it sets
// last_executed_at = now and next_scheduled_at = ComputeNext(frequency, now),
// but only while next_scheduled_at still equals expectedNext and the schedule
// is active. Losing that compare-and-set returns ErrStaleSchedule.
//
// The instants are compared after parsing, so a row whose timestamp was written
// in another layout still matches; the update then keys on the stored text.
func (s *Store) Advance(ctx context.Context, id string, expectedNext *time.Time, now time.Time) (time.Time, error) {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return time.Time{}, err
	}

	var stored sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT next_scheduled_at FROM schedules WHERE id = ?`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, errors.NewNotFoundError("schedule %s not found", id)
	}
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to read next run of schedule %s", id)
	}
	current, err := db.ParseNullTime(stored)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "schedule %s", id)
	}
	if !sameInstant(current, expectedNext) {
		return time.Time{}, errors.Wrapf(errors.ErrStaleSchedule, "schedule %s", id)
	}

	next := ComputeNext(sched.Frequency, now)
	result, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		SET last_executed_at = ?, next_scheduled_at = ?, updated_at = ?
		WHERE id = ? AND is_active = 1 AND next_scheduled_at IS ?`,
		db.FormatTime(now),
		db.FormatTime(next),
		db.FormatTime(now),
		id,
		stored,
	)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to advance schedule %s", id)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to read advance result")
	}
	if n == 0 {
		return time.Time{}, errors.Wrapf(errors.ErrStaleSchedule, "schedule %s", id)
	}
	return next, nil
}

// IncrementCounters adds to the denormalized run counters. Callers treat a
// failure as best effort: log it and carry on.
func (s *Store) IncrementCounters(ctx context.Context, id string, completedDelta, failedDelta int) error {
	if completedDelta == 0 && failedDelta == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		SET total_runs_completed = total_runs_completed + ?,
		    total_jobs_failed = total_jobs_failed + ?
		WHERE id = ?`,
		completedDelta, failedDelta, id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to increment counters for schedule %s", id)
	}
	return nil
}

// SetActive pauses or resumes a schedule. Pausing clears next_scheduled_at;
// resuming recomputes it from now so a long pause does not trigger a backlog.
func (s *Store) SetActive(ctx context.Context, id string, active bool, now time.Time) (*Schedule, error) {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.IsActive == active {
		return sched, nil
	}

	sched.NextScheduledAt = nil
	if active {
		t := ComputeNext(sched.Frequency, now)
		sched.NextScheduledAt = &t
	}
	next := db.FormatTimePtr(sched.NextScheduledAt)

	_, err = s.db.ExecContext(ctx, `
		UPDATE schedules SET is_active = ?, next_scheduled_at = ?, updated_at = ? WHERE id = ?`,
		active, next, db.FormatTime(now), id,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update schedule %s", id)
	}

	sched.IsActive = active
	sched.UpdatedAt = now.UTC()
	return sched, nil
}

// Delete removes a schedule and its execution history. Jobs already queued are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete schedule %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read delete result")
	}
	if n == 0 {
		return errors.NewNotFoundError("schedule %s not found", id)
	}
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

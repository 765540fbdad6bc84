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

// ExecutionStore handles persistence of schedule run history
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// Record inserts an execution row, assigning an id when empty
func (s *ExecutionStore) Record(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = exec.StartedAt
	}

	var jobIDs sql.NullString
	if len(exec.JobIDs) > 0 {
		data, err := json.Marshal(exec.JobIDs)
		if err != nil {
			return errors.Wrap(err, "failed to marshal job ids")
		}
		jobIDs = sql.NullString{String: string(data), Valid: true}
	}

	var errorMessage sql.NullString
	if exec.ErrorMessage != "" {
		errorMessage = sql.NullString{String: exec.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_executions (
			id, schedule_id, status, started_at, completed_at, duration_ms,
			jobs_queued, job_ids, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID,
		exec.ScheduleID,
		exec.Status,
		db.FormatTime(exec.StartedAt),
		db.FormatTimePtr(exec.CompletedAt),
		exec.DurationMs,
		exec.JobsQueued,
		jobIDs,
		errorMessage,
		db.FormatTime(exec.CreatedAt),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to record execution")
		return errors.WithDetailf(err, "Schedule ID: %s", exec.ScheduleID)
	}
	return nil
}

// List returns the most recent executions of a schedule, newest first
func (s *ExecutionStore) List(ctx context.Context, scheduleID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, status, started_at, completed_at, duration_ms,
		       jobs_queued, job_ids, error_message, created_at
		FROM schedule_executions
		WHERE schedule_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`,
		scheduleID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		var exec Execution
		var startedAt, createdAt string
		var completedAt, jobIDs, errorMessage sql.NullString
		var durationMs sql.NullInt64

		if err := rows.Scan(
			&exec.ID,
			&exec.ScheduleID,
			&exec.Status,
			&startedAt,
			&completedAt,
			&durationMs,
			&exec.JobsQueued,
			&jobIDs,
			&errorMessage,
			&createdAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}

		if exec.StartedAt, err = db.ParseTime(startedAt); err != nil {
			return nil, errors.Wrapf(err, "execution %s started_at", exec.ID)
		}
		if exec.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return nil, errors.Wrapf(err, "execution %s created_at", exec.ID)
		}
		if exec.CompletedAt, err = db.ParseNullTime(completedAt); err != nil {
			return nil, errors.Wrapf(err, "execution %s completed_at", exec.ID)
		}
		if jobIDs.Valid {
			if err := json.Unmarshal([]byte(jobIDs.String), &exec.JobIDs); err != nil {
				return nil, errors.Wrapf(err, "execution %s job_ids", exec.ID)
			}
		}
		exec.DurationMs = durationMs.Int64
		exec.ErrorMessage = errorMessage.String
		executions = append(executions, &exec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating executions")
	}
	return executions, nil
}

// Cleanup deletes executions older than the retention window and returns how many went
func (s *ExecutionStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM schedule_executions WHERE started_at < ?`, db.FormatTime(olderThan))
	if err != nil {
		return 0, errors.Wrap(err, "failed to clean up executions")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read cleanup result")
	}
	return n, nil
}

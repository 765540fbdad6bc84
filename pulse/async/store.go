package async

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
)

// LeaseExpiredMessage is the error recorded on jobs failed by the reaper
const LeaseExpiredMessage = "lease expired"

// Store handles persistence of generation jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertBatch inserts every job in one transaction. Either all rows land or none do.
func (s *Store) InsertBatch(ctx context.Context, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin enqueue transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO generation_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare job insert")
	}
	defer stmt.Close()

	for _, job := range jobs {
		warnings, err := encodeWarnings(job.Warnings)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			job.ID,
			nullString(job.ScheduleID),
			job.OwnerID,
			job.HandlerName,
			job.Status,
			nullString(string(job.Payload)),
			job.Progress.Current,
			job.Progress.Total,
			nullString(job.ResultRef),
			nullString(job.Error),
			warnings,
			db.FormatTime(job.CreatedAt),
			db.FormatTimePtr(job.StartedAt),
			db.FormatTimePtr(job.CompletedAt),
			db.FormatTimePtr(job.LeaseExpiresAt),
			db.FormatTime(job.UpdatedAt),
		)
		if err != nil {
			err = errors.Wrap(err, "failed to insert job")
			return errors.WithDetailf(err, "Job ID: %s, Handler: %s", job.ID, job.HandlerName)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit enqueue transaction")
	}
	return nil
}

// ClaimPending moves up to limit of the oldest pending jobs to generating in a
// single conditional UPDATE and returns exactly the rows it changed. Concurrent
// callers receive disjoint sets.
func (s *Store) ClaimPending(ctx context.Context, limit int, now, leaseUntil time.Time) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		UPDATE generation_jobs
		SET status = 'generating', started_at = ?, lease_expires_at = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM generation_jobs
			WHERE status = 'pending'
			ORDER BY created_at ASC, rowid ASC
			LIMIT ?
		) AND status = 'pending'
		RETURNING `+jobColumns,
		db.FormatTime(now),
		db.FormatTime(leaseUntil),
		db.FormatTime(now),
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim pending jobs")
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	sortByCreation(jobs)
	return jobs, nil
}

// ClaimByID claims one specific pending job. It returns (nil, nil) when the
// job exists but another worker already claimed it.
func (s *Store) ClaimByID(ctx context.Context, id string, now, leaseUntil time.Time) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE generation_jobs
		SET status = 'generating', started_at = ?, lease_expires_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
		RETURNING `+jobColumns,
		db.FormatTime(now),
		db.FormatTime(leaseUntil),
		db.FormatTime(now),
		id,
	)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(err, "failed to claim job %s", id)
	}
	if _, err := s.status(ctx, id); err != nil {
		return nil, err
	}
	return nil, nil
}

// Complete moves a generating job to completed. It reports false when the job
// was already terminal and nothing changed.
func (s *Store) Complete(ctx context.Context, id, resultRef string, warnings []string, now time.Time) (bool, error) {
	encoded, err := encodeWarnings(warnings)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = 'completed', result_ref = ?, warnings = ?, completed_at = ?,
		    lease_expires_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'generating'`,
		nullString(resultRef), encoded, db.FormatTime(now), db.FormatTime(now), id,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to complete job %s", id)
	}
	return s.checkTransition(ctx, result, id, JobStatusCompleted)
}

// Fail moves a pending or generating job to failed. It reports false when the
// job was already terminal and nothing changed.
func (s *Store) Fail(ctx context.Context, id, message string, warnings []string, now time.Time) (bool, error) {
	encoded, err := encodeWarnings(warnings)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = 'failed', error = ?, warnings = ?, completed_at = ?,
		    lease_expires_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'generating')`,
		nullString(message), encoded, db.FormatTime(now), db.FormatTime(now), id,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to fail job %s", id)
	}
	return s.checkTransition(ctx, result, id, JobStatusFailed)
}

// UpdateProgress records the completed item count and extends the lease
func (s *Store) UpdateProgress(ctx context.Context, id string, count int, leaseUntil, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET progress_count = ?, lease_expires_at = ?, updated_at = ?
		WHERE id = ? AND status = 'generating'`,
		count, db.FormatTime(leaseUntil), db.FormatTime(now), id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update progress for job %s", id)
	}
	_, err = s.checkTransition(ctx, result, id, JobStatusGenerating)
	return err
}

// checkTransition reports whether a conditional update changed the row, and
// explains one that touched none: the job is unknown, already terminal (no-op),
// or in a status the target does not allow.
func (s *Store) checkTransition(ctx context.Context, result sql.Result, id string, target JobStatus) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read update result")
	}
	if n > 0 {
		return true, nil
	}

	current, err := s.status(ctx, id)
	if err != nil {
		return false, err
	}
	if current.IsTerminal() {
		return false, nil
	}
	err = errors.Wrapf(errors.ErrInvalidTransition, "job %s: %s → %s", id, current, target)
	return false, errors.WithDetailf(err, "Job ID: %s", id)
}

func (s *Store) status(ctx context.Context, id string) (JobStatus, error) {
	var status JobStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM generation_jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(ErrJobNotFound, "job %s", id)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read status of job %s", id)
	}
	return status, nil
}

// ReapExpired fails every generating job whose lease ended before now
func (s *Store) ReapExpired(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE generation_jobs
		SET status = 'failed', error = ?, completed_at = ?, lease_expires_at = NULL, updated_at = ?
		WHERE status = 'generating'
		  AND lease_expires_at IS NOT NULL
		  AND lease_expires_at < ?
		RETURNING `+jobColumns,
		LeaseExpiredMessage,
		db.FormatTime(now),
		db.FormatTime(now),
		db.FormatTime(now),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reap expired jobs")
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	sortByCreation(jobs)
	return jobs, nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrJobNotFound, "job %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %s", id)
	}
	return job, nil
}

// ListFilter narrows ListJobs. Zero values match everything.
type ListFilter struct {
	Status     JobStatus
	ScheduleID string
	OwnerID    string
	Limit      int
}

// ListJobs returns jobs newest first
func (s *Store) ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error) {
	var where []string
	var args []interface{}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ScheduleID != "" {
		where = append(where, "schedule_id = ?")
		args = append(args, filter.ScheduleID)
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}

	query := `SELECT ` + jobColumns + ` FROM generation_jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	return scanJobs(rows)
}

// PurgeTerminal deletes completed and failed jobs that finished before olderThan
func (s *Store) PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM generation_jobs
		WHERE status IN ('completed', 'failed') AND completed_at < ?`,
		db.FormatTime(olderThan),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge jobs")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read purge result")
	}
	return n, nil
}

// Stats counts jobs per status
func (s *Store) Stats(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM generation_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	stats := map[JobStatus]int{
		JobStatusPending:    0,
		JobStatusGenerating: 0,
		JobStatusCompleted:  0,
		JobStatusFailed:     0,
	}
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}
	return stats, nil
}

package async

import (
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
)

// jobColumns is the column list every job SELECT and RETURNING uses, in scan order
const jobColumns = `id, schedule_id, owner_id, handler_name, status, payload,
	progress_count, progress_total, result_ref, error, warnings,
	created_at, started_at, completed_at, lease_expires_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// jobScanArgs holds the nullable and encoded columns of a job row
type jobScanArgs struct {
	ScheduleID     sql.NullString
	Payload        sql.NullString
	ResultRef      sql.NullString
	ErrorMsg       sql.NullString
	Warnings       sql.NullString
	CreatedAt      string
	StartedAt      sql.NullString
	CompletedAt    sql.NullString
	LeaseExpiresAt sql.NullString
	UpdatedAt      string
}

// scanTargets returns pointers in the order of jobColumns
func scanTargets(job *Job, args *jobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&args.ScheduleID,
		&job.OwnerID,
		&job.HandlerName,
		&job.Status,
		&args.Payload,
		&job.Progress.Current,
		&job.Progress.Total,
		&args.ResultRef,
		&args.ErrorMsg,
		&args.Warnings,
		&args.CreatedAt,
		&args.StartedAt,
		&args.CompletedAt,
		&args.LeaseExpiresAt,
		&args.UpdatedAt,
	}
}

// processScanArgs decodes the scanned columns into job
func processScanArgs(job *Job, args *jobScanArgs) error {
	job.ScheduleID = args.ScheduleID.String
	job.ResultRef = args.ResultRef.String
	job.Error = args.ErrorMsg.String
	if args.Payload.Valid && args.Payload.String != "" {
		job.Payload = json.RawMessage(args.Payload.String)
	}
	if args.Warnings.Valid && args.Warnings.String != "" {
		if err := json.Unmarshal([]byte(args.Warnings.String), &job.Warnings); err != nil {
			return errors.Wrap(err, "failed to unmarshal warnings")
		}
	}

	var err error
	if job.CreatedAt, err = db.ParseTime(args.CreatedAt); err != nil {
		return errors.Wrap(err, "failed to parse created_at")
	}
	if job.UpdatedAt, err = db.ParseTime(args.UpdatedAt); err != nil {
		return errors.Wrap(err, "failed to parse updated_at")
	}
	if job.StartedAt, err = db.ParseNullTime(args.StartedAt); err != nil {
		return errors.Wrap(err, "failed to parse started_at")
	}
	if job.CompletedAt, err = db.ParseNullTime(args.CompletedAt); err != nil {
		return errors.Wrap(err, "failed to parse completed_at")
	}
	if job.LeaseExpiresAt, err = db.ParseNullTime(args.LeaseExpiresAt); err != nil {
		return errors.Wrap(err, "failed to parse lease_expires_at")
	}
	return nil
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var args jobScanArgs
	if err := row.Scan(scanTargets(&job, &args)...); err != nil {
		return nil, err
	}
	if err := processScanArgs(&job, &args); err != nil {
		return nil, errors.Wrapf(err, "job %s", job.ID)
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}
	return jobs, nil
}

func encodeWarnings(warnings []string) (sql.NullString, error) {
	if len(warnings) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(warnings)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "failed to marshal warnings")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// sortByCreation restores claim order; RETURNING rows come back in storage order
func sortByCreation(jobs []*Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}

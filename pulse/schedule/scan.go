package schedule

import (
	"database/sql"
	"encoding/json"

	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
)

// scheduleColumns is the column list every schedule SELECT uses, in scan order
const scheduleColumns = `id, owner_id, target_id, kind, is_active,
	frequency_type, frequency_value, time_slots, timezone,
	last_executed_at, next_scheduled_at,
	total_runs_completed, total_jobs_failed, params,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scheduleScanArgs holds the nullable and encoded columns of a schedule row
type scheduleScanArgs struct {
	TargetID        sql.NullString
	TimeSlots       sql.NullString
	LastExecutedAt  sql.NullString
	NextScheduledAt sql.NullString
	Params          sql.NullString
	CreatedAt       string
	UpdatedAt       string
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var s Schedule
	var args scheduleScanArgs

	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&args.TargetID,
		&s.Kind,
		&s.IsActive,
		&s.Frequency.Type,
		&s.Frequency.Value,
		&args.TimeSlots,
		&s.Frequency.Timezone,
		&args.LastExecutedAt,
		&args.NextScheduledAt,
		&s.TotalRunsCompleted,
		&s.TotalJobsFailed,
		&args.Params,
		&args.CreatedAt,
		&args.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := processScanArgs(&s, &args); err != nil {
		return nil, errors.Wrapf(err, "schedule %s", s.ID)
	}
	return &s, nil
}

func processScanArgs(s *Schedule, args *scheduleScanArgs) error {
	s.TargetID = args.TargetID.String

	if args.TimeSlots.Valid && args.TimeSlots.String != "" {
		if err := json.Unmarshal([]byte(args.TimeSlots.String), &s.Frequency.TimeSlots); err != nil {
			return errors.Wrap(err, "failed to unmarshal time_slots")
		}
	}
	if args.Params.Valid && args.Params.String != "" {
		if err := json.Unmarshal([]byte(args.Params.String), &s.Params); err != nil {
			return errors.Wrap(err, "failed to unmarshal params")
		}
	}

	var err error
	if s.LastExecutedAt, err = db.ParseNullTime(args.LastExecutedAt); err != nil {
		return errors.Wrap(err, "failed to parse last_executed_at")
	}
	if s.NextScheduledAt, err = db.ParseNullTime(args.NextScheduledAt); err != nil {
		return errors.Wrap(err, "failed to parse next_scheduled_at")
	}
	if s.CreatedAt, err = db.ParseTime(args.CreatedAt); err != nil {
		return errors.Wrap(err, "failed to parse created_at")
	}
	if s.UpdatedAt, err = db.ParseTime(args.UpdatedAt); err != nil {
		return errors.Wrap(err, "failed to parse updated_at")
	}
	return nil
}

func scanSchedules(rows *sql.Rows) ([]*Schedule, error) {
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule")
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating schedules")
	}
	return schedules, nil
}

// encodeSlots stores slots as a JSON array, or NULL when there are none
func encodeSlots(slots []string) (sql.NullString, error) {
	if len(slots) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "failed to marshal time_slots")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

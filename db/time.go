package db

import (
	"database/sql"
	"time"

	"github.com/teranos/cadence/errors"
)

// TimeLayout is the fixed-width UTC layout every timestamp column uses.
// Fixed width keeps lexicographic comparison in SQL equal to time ordering.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatTimePtr renders t for storage, or NULL when t is nil.
func FormatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// ParseTime parses a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		// Rows written by hand (sqlite3 CLI, fixtures) usually carry RFC3339
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
		}
	}
	return t.UTC(), nil
}

// ParseNullTime parses a nullable stored timestamp.
func ParseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

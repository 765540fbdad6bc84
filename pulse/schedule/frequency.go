package schedule

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/internal/geotime"
)

// FrequencyType is the cadence kind of a schedule
type FrequencyType string

const (
	FrequencyHourly    FrequencyType = "hourly"
	FrequencyDaily     FrequencyType = "daily"
	FrequencyWeekly    FrequencyType = "weekly"
	FrequencyTimeSlots FrequencyType = "time_slots"
)

// IsValid reports whether t is one of the known frequency kinds
func (t FrequencyType) IsValid() bool {
	switch t {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyTimeSlots:
		return true
	}
	return false
}

// defaultSlotMinute is the implicit 09:00 slot used when a slot list is empty
const defaultSlotMinute = 9 * 60

// Frequency describes when a schedule runs.
// Value is the interval multiplier for hourly/daily/weekly; TimeSlots and
// Timezone only apply to time_slots.
type Frequency struct {
	Type      FrequencyType `json:"type" yaml:"type"`
	Value     int           `json:"value" yaml:"value"`
	TimeSlots []string      `json:"time_slots,omitempty" yaml:"time_slots,omitempty"`
	Timezone  string        `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// Validate rejects frequencies that cannot be stored. It runs when a schedule
// is created or imported; ComputeNext never fails. Value is not checked for
// time_slots, which ignores it.
func (f Frequency) Validate() error {
	if !f.Type.IsValid() {
		return errors.Wrapf(errors.ErrInvalidFrequency, "unknown frequency type %q", f.Type)
	}
	if f.Type != FrequencyTimeSlots && f.Value < 1 {
		return errors.Wrapf(errors.ErrInvalidFrequency, "frequency value must be >= 1, got %d", f.Value)
	}
	if f.Type == FrequencyTimeSlots {
		if len(f.TimeSlots) == 0 {
			return errors.Wrap(errors.ErrInvalidFrequency, "time_slots frequency needs at least one slot")
		}
		for _, slot := range f.TimeSlots {
			if _, ok := parseSlot(slot); !ok {
				return errors.Wrapf(errors.ErrInvalidFrequency, "malformed time slot %q (want HH:MM)", slot)
			}
		}
	}
	if f.Timezone != "" {
		if err := geotime.ValidateTimezone(f.Timezone); err != nil {
			return errors.Wrap(errors.ErrInvalidFrequency, err.Error())
		}
	}
	return nil
}

// String renders the frequency the way the CLI accepts it
func (f Frequency) String() string {
	switch f.Type {
	case FrequencyTimeSlots:
		tz := f.Timezone
		if tz == "" {
			tz = "UTC"
		}
		return "slots " + strings.Join(f.TimeSlots, ",") + " " + tz
	default:
		return string(f.Type) + "(" + strconv.Itoa(f.Value) + ")"
	}
}

// ComputeNext returns the next run time strictly after ref. It is total:
// values below 1 count as 1, an unknown timezone falls back to UTC,
// malformed slots are skipped and an empty slot list means 09:00 tomorrow.
func ComputeNext(f Frequency, ref time.Time) time.Time {
	value := f.Value
	if value < 1 {
		value = 1
	}

	var next time.Time
	switch f.Type {
	case FrequencyHourly:
		next = ref.Add(time.Duration(value) * time.Hour)
	case FrequencyDaily:
		next = ref.Add(time.Duration(value) * 24 * time.Hour)
	case FrequencyWeekly:
		next = ref.Add(time.Duration(value) * 7 * 24 * time.Hour)
	case FrequencyTimeSlots:
		next = nextSlot(f.TimeSlots, f.Timezone, ref)
	default:
		// Unknown kinds never pass Validate; treat legacy rows as daily
		next = ref.Add(24 * time.Hour)
	}

	if !next.After(ref) {
		next = ref.Add(time.Minute)
	}
	return next.UTC()
}

// nextSlot finds the earliest slot strictly after ref on ref's local day in
// tz, else the earliest slot on the following day.
func nextSlot(slots []string, tz string, ref time.Time) time.Time {
	loc := loadLocation(tz)
	local := ref.In(loc)

	minutes := make([]int, 0, len(slots))
	for _, s := range slots {
		if m, ok := parseSlot(s); ok {
			minutes = append(minutes, m)
		}
	}
	if len(minutes) == 0 {
		return atMinute(local, 1, defaultSlotMinute, loc)
	}
	sort.Ints(minutes)

	for _, m := range minutes {
		if candidate := atMinute(local, 0, m, loc); candidate.After(ref) {
			return candidate
		}
	}
	return atMinute(local, 1, minutes[0], loc)
}

func atMinute(day time.Time, addDays, minuteOfDay int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+addDays, minuteOfDay/60, minuteOfDay%60, 0, 0, loc)
}

func loadLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseSlot converts "HH:MM" to minute-of-day
func parseSlot(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

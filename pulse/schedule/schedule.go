// Package schedule decides when recurring generation work is due, claims each
// due period exactly once and expands it into queued jobs.
package schedule

import (
	"time"
)

// Kind distinguishes the two schedule flavors
type Kind string

const (
	// KindContent produces content items for one existing character (TargetID)
	KindContent Kind = "content"
	// KindCharacterAutogen produces brand-new characters for the owner
	KindCharacterAutogen Kind = "character_autogen"
)

// IsValid reports whether k is a known schedule kind
func (k Kind) IsValid() bool {
	return k == KindContent || k == KindCharacterAutogen
}

// GenerationParams is forwarded to the pipeline through each job's payload.
// Expansion reads ItemsPerRun, ProfileTypes, Genders and Themes; the rest is opaque here.
type GenerationParams struct {
	ContentType      string   `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Themes           []string `json:"themes,omitempty" yaml:"themes,omitempty"`
	StylePreferences []string `json:"style_preferences,omitempty" yaml:"style_preferences,omitempty"`
	ItemsPerRun      int      `json:"items_per_run,omitempty" yaml:"items_per_run,omitempty"`
	ImageCount       int      `json:"image_count,omitempty" yaml:"image_count,omitempty"`
	ProfileTypes     []string `json:"profile_types,omitempty" yaml:"profile_types,omitempty"`
	Genders          []string `json:"genders,omitempty" yaml:"genders,omitempty"`
	AutoPost         bool     `json:"auto_post,omitempty" yaml:"auto_post,omitempty"`
	Platforms        []string `json:"platforms,omitempty" yaml:"platforms,omitempty"`
	Width            int      `json:"width,omitempty" yaml:"width,omitempty"`
	Height           int      `json:"height,omitempty" yaml:"height,omitempty"`
}

// Schedule is a recurring directive to produce characters or content
type Schedule struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"owner_id"`
	TargetID  string           `json:"target_id,omitempty"` // character id; empty for character_autogen
	Kind      Kind             `json:"kind"`
	IsActive  bool             `json:"is_active"`
	Frequency Frequency        `json:"frequency"`
	Params    GenerationParams `json:"params"`

	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`

	TotalRunsCompleted int `json:"total_runs_completed"`
	TotalJobsFailed    int `json:"total_jobs_failed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDue reports whether the schedule should run at now
func (s *Schedule) IsDue(now time.Time) bool {
	return s.IsActive && s.NextScheduledAt != nil && !s.NextScheduledAt.After(now)
}

// JobsPerRun is how many jobs one due period expands into
func (s *Schedule) JobsPerRun() int {
	if s.Params.ItemsPerRun > 0 {
		return s.Params.ItemsPerRun
	}
	return max(s.Frequency.Value, 1)
}

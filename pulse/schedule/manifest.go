package schedule

import (
	"bytes"
	"context"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teranos/cadence/errors"
)

// Manifest is a YAML file of schedules to import:
//
//	schedules:
//	  - owner_id: u-1
//	    kind: content
//	    target_id: char-9
//	    frequency: {type: time_slots, value: 1, time_slots: ["09:00", "18:00"], timezone: Europe/Amsterdam}
//	    params: {themes: [beach, city], image_count: 3}
type Manifest struct {
	Schedules []ManifestEntry `yaml:"schedules"`
}

// ManifestEntry is one schedule in a manifest
type ManifestEntry struct {
	ID        string           `yaml:"id,omitempty"`
	OwnerID   string           `yaml:"owner_id"`
	Kind      Kind             `yaml:"kind"`
	TargetID  string           `yaml:"target_id,omitempty"`
	Paused    bool             `yaml:"paused,omitempty"`
	Frequency Frequency        `yaml:"frequency"`
	Params    GenerationParams `yaml:"params,omitempty"`
}

// Schedule converts the entry to an unsaved schedule
func (e ManifestEntry) Schedule() *Schedule {
	return &Schedule{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		TargetID:  e.TargetID,
		Kind:      e.Kind,
		IsActive:  !e.Paused,
		Frequency: e.Frequency,
		Params:    e.Params,
	}
}

// ParseManifest decodes manifest YAML, rejecting unknown fields
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, "failed to parse schedule manifest")
	}
	for i, entry := range m.Schedules {
		if err := entry.Frequency.Validate(); err != nil {
			return nil, errors.Wrapf(err, "schedule %d", i)
		}
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}
	return ParseManifest(data)
}

// Import creates every schedule in the manifest, stopping at the first failure.
// It returns the schedules created before that point.
func (s *Store) Import(ctx context.Context, m *Manifest, now time.Time) ([]*Schedule, error) {
	created := make([]*Schedule, 0, len(m.Schedules))
	for i, entry := range m.Schedules {
		sched := entry.Schedule()
		if err := s.Create(ctx, sched, now); err != nil {
			return created, errors.Wrapf(err, "schedule %d", i)
		}
		created = append(created, sched)
	}
	return created, nil
}

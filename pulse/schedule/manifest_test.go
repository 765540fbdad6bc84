package schedule

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cadence/errors"
	cadencetest "github.com/teranos/cadence/internal/testing"
)

const testManifest = `
schedules:
  - owner_id: u-1
    kind: content
    target_id: char-9
    frequency: {type: time_slots, value: 1, time_slots: ["09:00", "18:00"], timezone: UTC}
    params: {themes: [beach, city], image_count: 3}
  - id: autogen-nightly
    owner_id: u-1
    kind: character_autogen
    paused: true
    frequency:
      type: daily
      value: 1
    params:
      items_per_run: 2
      genders: [female]
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)
	require.Len(t, m.Schedules, 2)

	content := m.Schedules[0].Schedule()
	assert.Equal(t, KindContent, content.Kind)
	assert.Equal(t, "char-9", content.TargetID)
	assert.True(t, content.IsActive)
	assert.Equal(t, []string{"09:00", "18:00"}, content.Frequency.TimeSlots)
	assert.Equal(t, []string{"beach", "city"}, content.Params.Themes)
	assert.Equal(t, 3, content.Params.ImageCount)

	autogen := m.Schedules[1].Schedule()
	assert.Equal(t, "autogen-nightly", autogen.ID)
	assert.False(t, autogen.IsActive)
	assert.Equal(t, 2, autogen.Params.ItemsPerRun)
}

func TestParseManifestRejects(t *testing.T) {
	_, err := ParseManifest([]byte("schedules:\n  - owner_id: u\n    kind: content\n    colour: blue\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = ParseManifest([]byte("schedules:\n  - owner_id: u\n    kind: content\n    frequency: {type: monthly, value: 1}\n"))
	assert.True(t, errors.Is(err, errors.ErrInvalidFrequency))
}

func TestLoadManifestAndImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)

	store := NewStore(cadencetest.CreateTestDB(t))
	ctx := context.Background()

	created, err := store.Import(ctx, m, testNow)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, testNow.Add(8*time.Hour), *created[0].NextScheduledAt)
	assert.Nil(t, created[1].NextScheduledAt)

	// Importing again collides on the explicit id after the first entry succeeds
	created, err = store.Import(ctx, m, testNow)
	require.Error(t, err)
	assert.Len(t, created, 1)

	all, err := store.List(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

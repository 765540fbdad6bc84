package am

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (*ConfigWatcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pulse]\ndrain_limit = 5\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	cw.debouncePeriod = 20 * time.Millisecond
	cw.loader = func() (*Config, error) { return LoadFromFile(path) }
	return cw, path
}

func TestConfigWatcherReloads(t *testing.T) {
	cw, path := newTestWatcher(t)

	var drainLimit atomic.Int64
	cw.OnReload(func(c *Config) error {
		drainLimit.Store(int64(c.Pulse.DrainLimit))
		return nil
	})
	cw.Start()
	t.Cleanup(func() { cw.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("[pulse]\ndrain_limit = 9\n"), 0644))

	assert.Eventually(t, func() bool { return drainLimit.Load() == 9 }, 2*time.Second, 10*time.Millisecond)
}

func TestConfigWatcherSkipsInvalidConfig(t *testing.T) {
	cw, path := newTestWatcher(t)

	var calls atomic.Int64
	cw.OnReload(func(*Config) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("[pulse]\ndrain_limit = 0\n"), 0644))
	err := cw.reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keeping previous settings")
	assert.Zero(t, calls.Load())
	require.NoError(t, cw.Stop())
}

func TestConfigWatcherOwnWrite(t *testing.T) {
	cw, _ := newTestWatcher(t)
	defer cw.Stop()

	cw.MarkOwnWrite()
	assert.True(t, cw.consumeOwnWrite())
	assert.False(t, cw.consumeOwnWrite())
}

func TestBackupFilePattern(t *testing.T) {
	assert.True(t, backupFilePattern.MatchString("/x/am.toml.back1"))
	assert.True(t, backupFilePattern.MatchString("am.toml.back3"))
	assert.False(t, backupFilePattern.MatchString("am.toml"))
	assert.False(t, backupFilePattern.MatchString("am.toml.back4"))
}

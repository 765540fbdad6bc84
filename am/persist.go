package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup", "path", back3, "error", err)
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

// defaultDocument is the starter am.toml written by `cadence am init`.
// Secrets are left out; they come from the environment.
type defaultDocument struct {
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	Pulse struct {
		TickSpec            string `toml:"tick_spec"`
		Workers             int    `toml:"workers"`
		DrainLimit          int    `toml:"drain_limit"`
		PollIntervalSeconds int    `toml:"poll_interval_seconds"`
		JobLeaseSeconds     int    `toml:"job_lease_seconds"`
		ReapIntervalSeconds int    `toml:"reap_interval_seconds"`
		KickFirstJob        bool   `toml:"kick_first_job"`
	} `toml:"pulse"`
	Generation struct {
		CallTimeoutSeconds int    `toml:"call_timeout_seconds"`
		ImageWidth         int    `toml:"image_width"`
		ImageHeight        int    `toml:"image_height"`
		MaxImagesPerJob    int    `toml:"max_images_per_job"`
		TextProvider       string `toml:"text_provider"`
	} `toml:"generation"`
	Storage struct {
		Driver string `toml:"driver"`
		Path   string `toml:"path"`
	} `toml:"storage"`
}

func documentFrom(c *Config) defaultDocument {
	var d defaultDocument
	d.Database.Path = c.Database.Path
	d.Pulse.TickSpec = c.Pulse.TickSpec
	d.Pulse.Workers = c.Pulse.Workers
	d.Pulse.DrainLimit = c.Pulse.DrainLimit
	d.Pulse.PollIntervalSeconds = c.Pulse.PollIntervalSeconds
	d.Pulse.JobLeaseSeconds = c.Pulse.JobLeaseSeconds
	d.Pulse.ReapIntervalSeconds = c.Pulse.ReapIntervalSeconds
	d.Pulse.KickFirstJob = c.Pulse.KickFirstJob
	d.Generation.CallTimeoutSeconds = c.Generation.CallTimeoutSeconds
	d.Generation.ImageWidth = c.Generation.ImageWidth
	d.Generation.ImageHeight = c.Generation.ImageHeight
	d.Generation.MaxImagesPerJob = c.Generation.MaxImagesPerJob
	d.Generation.TextProvider = c.Generation.TextProvider
	d.Storage.Driver = c.Storage.Driver
	d.Storage.Path = c.Storage.Path
	return d
}

// WriteConfig writes the persistable part of c to configPath as TOML,
// rotating backups of any existing file first.
func WriteConfig(c *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create config directory for %s", configPath)
	}
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(documentFrom(c))
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config %s", configPath)
	}
	return nil
}

// WriteDefault writes a starter config populated with defaults
func WriteDefault(configPath string) (*Config, error) {
	c, err := Defaults()
	if err != nil {
		return nil, err
	}
	if err := WriteConfig(c, configPath); err != nil {
		return nil, err
	}
	return c, nil
}

// Defaults returns a Config holding only default values
func Defaults() (*Config, error) {
	v := newDefaultsViper()
	return LoadWithViper(v)
}

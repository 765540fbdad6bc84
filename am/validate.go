package am

import (
	"github.com/robfig/cron/v3"

	"github.com/teranos/cadence/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && (*c.Server.Port < 0 || *c.Server.Port > 65535) {
		return errors.Newf("server.port must be between 1 and 65535, got %d", *c.Server.Port)
	}

	// Empty tick spec disables periodic ticking; anything else must parse
	if c.Pulse.TickSpec != "" {
		if _, err := cron.ParseStandard(c.Pulse.TickSpec); err != nil {
			return errors.Wrapf(err, "pulse.tick_spec %q", c.Pulse.TickSpec)
		}
	}
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.DrainLimit <= 0 {
		return errors.Newf("pulse.drain_limit must be > 0, got %d", c.Pulse.DrainLimit)
	}
	if c.Pulse.PollIntervalSeconds <= 0 {
		return errors.Newf("pulse.poll_interval_seconds must be > 0, got %d", c.Pulse.PollIntervalSeconds)
	}
	if c.Pulse.JobLeaseSeconds <= 0 {
		return errors.Newf("pulse.job_lease_seconds must be > 0, got %d", c.Pulse.JobLeaseSeconds)
	}
	// Reap interval: 0 = reap on start-up only
	if c.Pulse.ReapIntervalSeconds < 0 {
		return errors.Newf("pulse.reap_interval_seconds must be >= 0, got %d", c.Pulse.ReapIntervalSeconds)
	}

	if c.Generation.CallTimeoutSeconds <= 0 {
		return errors.Newf("generation.call_timeout_seconds must be > 0, got %d", c.Generation.CallTimeoutSeconds)
	}
	if c.Generation.ImageWidth <= 0 || c.Generation.ImageHeight <= 0 {
		return errors.Newf("generation image size must be positive, got %dx%d", c.Generation.ImageWidth, c.Generation.ImageHeight)
	}
	if c.Generation.MaxImagesPerJob <= 0 {
		return errors.Newf("generation.max_images_per_job must be > 0, got %d", c.Generation.MaxImagesPerJob)
	}
	switch c.Generation.TextProvider {
	case "openrouter", "ollama", "openai":
	default:
		return errors.Newf("generation.text_provider must be openrouter, ollama or openai, got %q", c.Generation.TextProvider)
	}

	if c.OpenRouter.RequestsPerMinute < 0 {
		return errors.Newf("openrouter.requests_per_minute must be >= 0, got %d", c.OpenRouter.RequestsPerMinute)
	}
	if c.Imaging.RequestsPerMinute < 0 {
		return errors.Newf("imaging.requests_per_minute must be >= 0, got %d", c.Imaging.RequestsPerMinute)
	}

	if c.Publishing.Enabled && c.Publishing.BaseURL == "" {
		return errors.New("publishing.base_url cannot be empty when enabled")
	}

	switch c.Storage.Driver {
	case "fs":
		if c.Storage.Path == "" {
			return errors.New("storage.path cannot be empty for the fs driver")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket cannot be empty for the s3 driver")
		}
	default:
		return errors.Newf("storage.driver must be fs or s3, got %q", c.Storage.Driver)
	}

	return nil
}

package am

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(homeDir(), "cadence.db"))

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"http://localhost", "http://127.0.0.1"})
	v.SetDefault("server.log_theme", "everforest")

	v.SetDefault("pulse.tick_spec", "@every 1m")
	v.SetDefault("pulse.workers", 1)
	v.SetDefault("pulse.drain_limit", 5)
	v.SetDefault("pulse.poll_interval_seconds", 5)
	v.SetDefault("pulse.job_lease_seconds", 1800)
	v.SetDefault("pulse.reap_interval_seconds", 60)
	v.SetDefault("pulse.kick_first_job", true)

	v.SetDefault("generation.call_timeout_seconds", 115)
	v.SetDefault("generation.image_width", 832)
	v.SetDefault("generation.image_height", 1216)
	v.SetDefault("generation.max_images_per_job", 8)
	v.SetDefault("generation.text_provider", "openrouter")

	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.temperature", 0.9)
	v.SetDefault("openrouter.max_tokens", 800)
	v.SetDefault("openrouter.requests_per_minute", 60)

	v.SetDefault("llm.model", "llama3.2:3b")
	v.SetDefault("llm.ollama_host", "http://localhost:11434")

	v.SetDefault("imaging.base_url", "https://api.segmind.com/v1")
	v.SetDefault("imaging.model", "sdxl1.0-txt2img")
	v.SetDefault("imaging.faceswap_model", "faceswap-v2")
	v.SetDefault("imaging.requests_per_minute", 30)
	v.SetDefault("imaging.max_image_bytes", 20<<20)

	v.SetDefault("publishing.enabled", false)
	v.SetDefault("publishing.base_url", "https://getlate.dev/api/v1")

	v.SetDefault("storage.driver", "fs")
	v.SetDefault("storage.path", filepath.Join(homeDir(), "blobs"))
	v.SetDefault("storage.prefix", "images/")

	v.SetDefault("metrics.enabled", true)
}

// BindSensitiveEnvVars binds secrets to their conventional variable names
// so they never need to live in a config file.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "CADENCE_DATABASE_PATH")
	v.BindEnv("server.cron_secret", "CADENCE_CRON_SECRET", "CRON_SECRET")
	v.BindEnv("openrouter.api_key", "CADENCE_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("llm.openai_api_key", "CADENCE_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("imaging.api_key", "CADENCE_IMAGING_API_KEY", "SEGMIND_API_KEY")
	v.BindEnv("publishing.api_key", "CADENCE_PUBLISHING_API_KEY", "LATE_API_KEY")
}

// homeDir returns ~/.cadence, falling back to the working directory
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cadence"
	}
	return filepath.Join(home, ".cadence")
}

// ExpandPath replaces a leading ~ with the user's home directory
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// GetServerPort returns the configured port or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return filepath.Join(homeDir(), "cadence.db")
	}
	return ExpandPath(c.Database.Path)
}

// String returns a one-line summary safe to log (no secrets)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Pulse: {TickSpec: %s, Workers: %d, DrainLimit: %d}, Storage: %s, TextProvider: %s}",
		c.GetDatabasePath(), c.Pulse.TickSpec, c.Pulse.Workers, c.Pulse.DrainLimit, c.Storage.Driver, c.Generation.TextProvider)
}

func newDefaultsViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

// Redacted returns a copy with every credential masked, for display
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&out.Server.CronSecret)
	mask(&out.OpenRouter.APIKey)
	mask(&out.LLM.OpenAIAPIKey)
	mask(&out.Imaging.APIKey)
	mask(&out.Publishing.APIKey)
	return &out
}

package am

import "time"

// Config represents the cadence configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Pulse      PulseConfig      `mapstructure:"pulse"`
	Generation GenerationConfig `mapstructure:"generation"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Imaging    ImagingConfig    `mapstructure:"imaging"`
	Publishing PublishingConfig `mapstructure:"publishing"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP trigger server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"`        // nil = DefaultServerPort, 0 is invalid
	CronSecret     string   `mapstructure:"cron_secret"` // bearer token required on trigger endpoints when set
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	LogTheme       string   `mapstructure:"log_theme"` // gruvbox, everforest
}

// DefaultServerPort is used when server.port is omitted
const DefaultServerPort = 8787

// PulseConfig configures ticking, draining and workers
type PulseConfig struct {
	TickSpec            string `mapstructure:"tick_spec"`             // cron spec for scheduler ticks, e.g. "@every 1m"
	Workers             int    `mapstructure:"workers"`               // concurrent drain workers (0 = none)
	DrainLimit          int    `mapstructure:"drain_limit"`           // jobs claimed per drain
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"` // idle wait between drains
	JobLeaseSeconds     int    `mapstructure:"job_lease_seconds"`     // lease granted at claim and on every progress update
	ReapIntervalSeconds int    `mapstructure:"reap_interval_seconds"` // how often expired leases are failed (0 = start-up only)
	KickFirstJob        bool   `mapstructure:"kick_first_job"`        // process the first job of each tick immediately
}

// JobLease returns the configured lease as a duration
func (p PulseConfig) JobLease() time.Duration {
	return time.Duration(p.JobLeaseSeconds) * time.Second
}

// PollInterval returns the configured worker poll interval
func (p PulseConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// ReapInterval returns the configured reap interval
func (p PulseConfig) ReapInterval() time.Duration {
	return time.Duration(p.ReapIntervalSeconds) * time.Second
}

// GenerationConfig configures the generation pipeline
type GenerationConfig struct {
	CallTimeoutSeconds int    `mapstructure:"call_timeout_seconds"` // per collaborator call
	ImageWidth         int    `mapstructure:"image_width"`
	ImageHeight        int    `mapstructure:"image_height"`
	MaxImagesPerJob    int    `mapstructure:"max_images_per_job"`
	TextProvider       string `mapstructure:"text_provider"` // openrouter, ollama, openai
}

// CallTimeout returns the per-call timeout as a duration
func (g GenerationConfig) CallTimeout() time.Duration {
	return time.Duration(g.CallTimeoutSeconds) * time.Second
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey            string   `mapstructure:"api_key"`
	Model             string   `mapstructure:"model"`               // e.g. "openai/gpt-4o-mini"
	Temperature       *float64 `mapstructure:"temperature"`         // nil = 0.9
	MaxTokens         *int     `mapstructure:"max_tokens"`          // nil = 800
	RequestsPerMinute int      `mapstructure:"requests_per_minute"` // 0 = unlimited
}

// LLMConfig configures the langchaingo-backed text providers
type LLMConfig struct {
	Model        string `mapstructure:"model"`
	OllamaHost   string `mapstructure:"ollama_host"`
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
}

// ImagingConfig configures the image generation and face-swap backend
type ImagingConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	FaceSwapModel     string `mapstructure:"faceswap_model"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	MaxImageBytes     int64  `mapstructure:"max_image_bytes"`
}

// PublishingConfig configures the social publishing sink
type PublishingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// StorageConfig configures where generated images are kept
type StorageConfig struct {
	Driver        string `mapstructure:"driver"` // fs, s3
	Path          string `mapstructure:"path"`   // fs root
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	Prefix        string `mapstructure:"prefix"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

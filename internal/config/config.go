package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Values are resolved in three layers, each overriding the previous:
// environment variables, an optional TOML config file (CONFIG_FILE),
// and runtime settings persisted through the settings API.
//
// Environment Variables:
// AI Configuration:
// - AI_API_KEY: API key for the translation provider (required)
// - AI_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - AI_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - AI_TIMEOUT: Request timeout (default: 60s)
// - AI_MAX_REQUESTS_PER_MIN: Upstream rate limit (default: 5)
// - AI_SITE_URL: Site URL for HTTP referer header (optional)
// - AI_APP_NAME: Application name for X-Title header (optional)
//
// Queue Configuration:
// - QUEUE_MAX_CHARS_PER_REQUEST: Chunk size limit in characters (default: 10000)
// - QUEUE_MAX_CONCURRENT_JOBS: Jobs advanced per tick (default: 1)
// - QUEUE_RETRY_CAP: Transient-failure retries per job (default: 3)
// - QUEUE_STUCK_THRESHOLD: Heartbeat age before recovery (default: 5m)
// - QUEUE_RETENTION: Terminal job retention window (default: 72h)
// - QUEUE_RESCHEDULE_DELAY: Delay before a self-triggered tick (default: 3s)
//
// Translate Configuration:
// - CRON_EXPR: Tick schedule (default: * * * * *)
// - SOURCE_LANGUAGE: Fallback source language (default: en)
// - PUBLISH_STATUS: Status assigned to new translations (default: draft)
//
// Server and Storage:
// - SERVER_ADDR: HTTP listen address (default: :8080)
// - DB_PATH: SQLite database path (default: data/translate.db)
// - CONFIG_FILE: Optional TOML file layered over the environment
// - SETTINGS_FILE: Runtime settings file (default: data/settings.json)
type Config struct {
	AI        AIConfig        `json:"ai" toml:"ai"`
	Queue     QueueConfig     `json:"queue" toml:"queue"`
	Translate TranslateConfig `json:"translate" toml:"translate"`
	Server    ServerConfig    `json:"server" toml:"server"`
	Storage   StorageConfig   `json:"storage" toml:"storage"`
}

// AIConfig holds the configuration for the translation client.
// Any OpenAI-compatible provider works (OpenRouter, OpenAI, self-hosted).
type AIConfig struct {
	APIKey            string   `json:"api_key" toml:"api_key"`
	APIURL            string   `json:"api_url" toml:"api_url"`
	Model             string   `json:"model" toml:"model"`
	Timeout           Duration `json:"timeout" toml:"timeout"`
	RequestsPerMinute int      `json:"requests_per_minute" toml:"requests_per_minute"`
	SiteURL           string   `json:"site_url" toml:"site_url"`
	AppName           string   `json:"app_name" toml:"app_name"`
}

// QueueConfig bounds the job scheduler.
type QueueConfig struct {
	MaxCharsPerRequest int      `json:"max_chars_per_request" toml:"max_chars_per_request"`
	MaxConcurrentJobs  int      `json:"max_concurrent_jobs" toml:"max_concurrent_jobs"`
	RetryCap           int      `json:"retry_cap" toml:"retry_cap"`
	StuckThreshold     Duration `json:"stuck_threshold" toml:"stuck_threshold"`
	Retention          Duration `json:"retention" toml:"retention"`
	RescheduleDelay    Duration `json:"reschedule_delay" toml:"reschedule_delay"`
}

type TranslateConfig struct {
	SourceLanguage string `json:"source_language" toml:"source_language"`
	PublishStatus  string `json:"publish_status" toml:"publish_status"`
	CronExpr       string `json:"cron_expr" toml:"cron_expr"`
}

type ServerConfig struct {
	Addr string `json:"addr" toml:"addr"`
}

type StorageConfig struct {
	DBPath string `json:"db_path" toml:"db_path"`
}

// Duration wraps time.Duration so TOML files can use "5m" / "72h" strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Option is a function type for configuring Config.
type Option func(*Config)

// NewFromEnv creates a Config from environment variables, layers the TOML
// file named by CONFIG_FILE (if any) over it, then applies options.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		AI: AIConfig{
			APIKey:            getEnvString("AI_API_KEY", ""),
			APIURL:            getEnvString("AI_API_URL", "https://openrouter.ai/api/v1"),
			Model:             getEnvString("AI_MODEL", "openai/gpt-4o-mini"),
			Timeout:           Duration{getEnvDuration("AI_TIMEOUT", 60*time.Second)},
			RequestsPerMinute: getEnvInt("AI_MAX_REQUESTS_PER_MIN", 5),
			SiteURL:           getEnvString("AI_SITE_URL", ""),
			AppName:           getEnvString("AI_APP_NAME", ""),
		},
		Queue: QueueConfig{
			MaxCharsPerRequest: getEnvInt("QUEUE_MAX_CHARS_PER_REQUEST", 10000),
			MaxConcurrentJobs:  getEnvInt("QUEUE_MAX_CONCURRENT_JOBS", 1),
			RetryCap:           getEnvInt("QUEUE_RETRY_CAP", 3),
			StuckThreshold:     Duration{getEnvDuration("QUEUE_STUCK_THRESHOLD", 5*time.Minute)},
			Retention:          Duration{getEnvDuration("QUEUE_RETENTION", 72*time.Hour)},
			RescheduleDelay:    Duration{getEnvDuration("QUEUE_RESCHEDULE_DELAY", 3*time.Second)},
		},
		Translate: TranslateConfig{
			SourceLanguage: getEnvString("SOURCE_LANGUAGE", "en"),
			PublishStatus:  getEnvString("PUBLISH_STATUS", "draft"),
			CronExpr:       getEnvString("CRON_EXPR", "* * * * *"),
		},
		Server: ServerConfig{
			Addr: getEnvString("SERVER_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			DBPath: getEnvString("DB_PATH", "data/translate.db"),
		},
	}

	if path := getEnvString("CONFIG_FILE", ""); path != "" {
		if err := config.LoadFile(path); err != nil {
			return nil, err
		}
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFile layers a TOML file over the current configuration. Keys absent
// from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

// validate checks if all required configuration is properly set.
func (c *Config) validate() error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("AI_API_KEY is required")
	}
	if _, err := cron.ParseStandard(c.Translate.CronExpr); err != nil {
		return fmt.Errorf("invalid CRON_EXPR: %w", err)
	}
	if _, err := language.Parse(c.Translate.SourceLanguage); err != nil {
		return fmt.Errorf("invalid SOURCE_LANGUAGE: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration value ("30s", "5m") from environment
// variables with default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

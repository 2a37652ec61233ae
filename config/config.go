// Package config defines the immutable service configuration. It is
// constructed once at process start and passed to each component by
// reference; no component reads ambient configuration directly.
package config

import (
	"fmt"
	"time"

	"github.com/skillsenselab/transcribed/logger"
	"github.com/skillsenselab/transcribed/quota"
)

// Config is the root service configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service" mapstructure:"service"`
	Logging  logger.Config  `yaml:"logging" mapstructure:"logging"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Intake   IntakeConfig   `yaml:"intake" mapstructure:"intake"`
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Quota    QuotaConfig    `yaml:"quota" mapstructure:"quota"`
	Worker   WorkerConfig   `yaml:"worker" mapstructure:"worker"`
}

// ServiceConfig contains essential fields every deployment needs.
type ServiceConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Version     string `yaml:"version" mapstructure:"version"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `yaml:"host" mapstructure:"host"`
	Port         int    `yaml:"port" mapstructure:"port"`
	ReadTimeout  int    `yaml:"read_timeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" mapstructure:"write_timeout"` // seconds
	IdleTimeout  int    `yaml:"idle_timeout" mapstructure:"idle_timeout"`   // seconds
	// AdminToken guards the operator API. Empty disables the admin routes.
	AdminToken string `yaml:"admin_token" mapstructure:"admin_token"`
}

// RedisConfig holds Redis connection configuration. When disabled, all
// pipeline state lives in process memory.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// StorageConfig holds audio blob storage configuration.
type StorageConfig struct {
	// BasePath is the root directory for stored clips.
	BasePath string `yaml:"base_path" mapstructure:"base_path"`
	// MinFreeMB is the free-space floor below which uploads are refused.
	MinFreeMB int `yaml:"min_free_mb" mapstructure:"min_free_mb"`
}

// IntakeConfig holds submission validation configuration.
type IntakeConfig struct {
	// MaxUploadSize is the payload ceiling (e.g. "10MB").
	MaxUploadSize string `yaml:"max_upload_size" mapstructure:"max_upload_size"`
	// RateLimit is the per-identity submission budget for anonymous clients.
	RateLimit int `yaml:"rate_limit" mapstructure:"rate_limit"`
	// RateWindow is the counting window for the submission budget.
	RateWindow time.Duration `yaml:"rate_window" mapstructure:"rate_window"`
	// MaxTrackedJobs is the ceiling on simultaneously tracked jobs.
	MaxTrackedJobs int `yaml:"max_tracked_jobs" mapstructure:"max_tracked_jobs"`
}

// ProviderConfig holds external speech-to-text backend configuration.
type ProviderConfig struct {
	// URL is the transcription endpoint. Empty means no server configured.
	URL string `yaml:"url" mapstructure:"url"`
	// APIKey is sent as a Bearer token when non-empty.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// Timeout bounds a single transcription call.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// DefaultLanguage is applied when a submission omits one.
	DefaultLanguage string `yaml:"default_language" mapstructure:"default_language"`
	// ExternalSendEnabled gates all provider traffic independently of URL.
	ExternalSendEnabled bool `yaml:"external_send_enabled" mapstructure:"external_send_enabled"`
}

// QuotaConfig holds monthly metering configuration.
type QuotaConfig struct {
	// MonthlyMinutes is the monthly budget. Zero means no minutes ever fit;
	// it is never treated as unlimited.
	MonthlyMinutes int `yaml:"monthly_minutes" mapstructure:"monthly_minutes"`
	// AlertPercent triggers the operator alert when usage reaches it.
	AlertPercent int `yaml:"alert_percent" mapstructure:"alert_percent"`
	// Operators are the alert recipient addresses.
	Operators []string `yaml:"operators" mapstructure:"operators"`
	// FallbackContact receives alerts when no operators are configured.
	FallbackContact string `yaml:"fallback_contact" mapstructure:"fallback_contact"`
	// SMTP is the mail relay for alerts. Empty host falls back to log alerts.
	SMTP quota.SMTPConfig `yaml:"smtp" mapstructure:"smtp"`
}

// WorkerConfig holds processing policy configuration.
type WorkerConfig struct {
	// AllowUnknownDuration permits sends for clips without a reported duration.
	AllowUnknownDuration bool `yaml:"allow_unknown_duration" mapstructure:"allow_unknown_duration"`
	// AutoDeleteAudio removes the audio asset after successful completion.
	AutoDeleteAudio bool `yaml:"auto_delete_audio" mapstructure:"auto_delete_audio"`
	// PlaceholderOnDisabled completes jobs with a placeholder transcript
	// instead of no_server_configured when sending is disabled.
	PlaceholderOnDisabled bool `yaml:"placeholder_on_disabled" mapstructure:"placeholder_on_disabled"`
	// DispatchDelay is the fixed delay between submission and processing.
	DispatchDelay time.Duration `yaml:"dispatch_delay" mapstructure:"dispatch_delay"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "transcribed"
	}
	if c.Service.Environment == "" {
		c.Service.Environment = "development"
	}
	c.Logging.ApplyDefaults()

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	if c.Storage.BasePath == "" {
		c.Storage.BasePath = "/var/lib/transcribed/audio"
	}
	if c.Storage.MinFreeMB == 0 {
		c.Storage.MinFreeMB = 100
	}

	if c.Intake.MaxUploadSize == "" {
		c.Intake.MaxUploadSize = "10MB"
	}
	if c.Intake.RateLimit == 0 {
		c.Intake.RateLimit = 3
	}
	if c.Intake.RateWindow == 0 {
		c.Intake.RateWindow = time.Hour
	}
	if c.Intake.MaxTrackedJobs == 0 {
		c.Intake.MaxTrackedJobs = 1000
	}

	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 180 * time.Second
	}
	if c.Provider.DefaultLanguage == "" {
		c.Provider.DefaultLanguage = "fr-FR"
	}

	if c.Quota.AlertPercent == 0 {
		c.Quota.AlertPercent = 80
	}

	if c.Worker.DispatchDelay == 0 {
		c.Worker.DispatchDelay = 3 * time.Second
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got: %d)", c.Server.Port)
	}
	if c.Intake.RateLimit < 0 {
		return fmt.Errorf("intake.rate_limit must be non-negative (got: %d)", c.Intake.RateLimit)
	}
	if c.Intake.MaxTrackedJobs < 0 {
		return fmt.Errorf("intake.max_tracked_jobs must be non-negative (got: %d)", c.Intake.MaxTrackedJobs)
	}
	if c.Quota.AlertPercent < 1 || c.Quota.AlertPercent > 100 {
		return fmt.Errorf("quota.alert_percent must be between 1 and 100 (got: %d)", c.Quota.AlertPercent)
	}
	if c.Quota.MonthlyMinutes < 0 {
		return fmt.Errorf("quota.monthly_minutes must be non-negative (got: %d)", c.Quota.MonthlyMinutes)
	}
	if c.Provider.URL != "" {
		if err := ValidateProviderURL(c.Provider.URL); err != nil {
			return fmt.Errorf("provider.url: %w", err)
		}
	}
	return nil
}

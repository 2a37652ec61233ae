package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from the given YAML file (optional) and the
// environment, applies defaults and validates the result. Environment
// variables use the ASR_ prefix with underscores for nesting, e.g.
// ASR_PROVIDER_URL overrides provider.url.
func Load(configFile string) (*Config, error) {
	// A .env next to the binary is a development convenience; missing is fine.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("ASR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	// Bind the keys we read so AutomaticEnv sees them even without a file.
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

var configKeys = []string{
	"service.name",
	"service.environment",
	"logging.level",
	"logging.format",
	"server.host",
	"server.port",
	"server.admin_token",
	"redis.enabled",
	"redis.addr",
	"redis.password",
	"redis.db",
	"storage.base_path",
	"storage.min_free_mb",
	"intake.max_upload_size",
	"intake.rate_limit",
	"intake.rate_window",
	"intake.max_tracked_jobs",
	"provider.url",
	"provider.api_key",
	"provider.timeout",
	"provider.default_language",
	"provider.external_send_enabled",
	"quota.monthly_minutes",
	"quota.alert_percent",
	"quota.operators", // comma-separated in the environment
	"quota.fallback_contact",
	"quota.smtp.host",
	"quota.smtp.port",
	"quota.smtp.username",
	"quota.smtp.password",
	"quota.smtp.from",
	"worker.allow_unknown_duration",
	"worker.auto_delete_audio",
	"worker.placeholder_on_disabled",
	"worker.dispatch_delay",
}

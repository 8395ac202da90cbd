// Package config loads daemon and CLI settings from a YAML file and the
// environment.
//
// Precedence, lowest to highest: built-in defaults, the config file,
// POSSYNC_* environment variables. Every knob has a working default so a
// bare config file with just the tenant and remote URL is enough to run.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// TenantID identifies the restaurant this device belongs to.
	TenantID string `mapstructure:"tenant_id"`

	// RemoteURL is the cloud store API root.
	RemoteURL string `mapstructure:"remote_url"`

	// Token authenticates this device's session.
	Token string `mapstructure:"token"`

	// DBPath is the local SQLite database location.
	DBPath string `mapstructure:"db_path"`

	// LogPath is the daemon log file. Empty logs to stderr only.
	LogPath string `mapstructure:"log_path"`

	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	RebuildInterval   time.Duration `mapstructure:"rebuild_interval"`
	UploadPoll        time.Duration `mapstructure:"upload_poll"`

	UploadBackoffBase   time.Duration `mapstructure:"upload_backoff_base"`
	UploadBackoffCap    time.Duration `mapstructure:"upload_backoff_cap"`
	ListenerBackoffBase time.Duration `mapstructure:"listener_backoff_base"`
	ListenerBackoffCap  time.Duration `mapstructure:"listener_backoff_cap"`

	MaxUploadRetries int     `mapstructure:"max_upload_retries"`
	MaxDeleteBatch   int     `mapstructure:"max_delete_batch"`
	TaxRate          float64 `mapstructure:"tax_rate"`
}

// Load reads configuration from the given file path (empty means search the
// usual locations) plus POSSYNC_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Empty defaults register the keys so environment overrides reach
	// Unmarshal even without a config file.
	v.SetDefault("tenant_id", "")
	v.SetDefault("remote_url", "")
	v.SetDefault("token", "")
	v.SetDefault("db_path", filepath.Join(".possync", "possync.db"))
	v.SetDefault("log_path", filepath.Join(".possync", "possync.log"))
	v.SetDefault("reconcile_interval", 5*time.Minute)
	v.SetDefault("sweep_interval", 30*time.Minute)
	v.SetDefault("rebuild_interval", 30*time.Minute)
	v.SetDefault("upload_poll", 250*time.Millisecond)
	v.SetDefault("upload_backoff_base", time.Second)
	v.SetDefault("upload_backoff_cap", 2*time.Minute)
	v.SetDefault("listener_backoff_base", time.Second)
	v.SetDefault("listener_backoff_cap", time.Minute)
	v.SetDefault("max_upload_retries", 8)
	v.SetDefault("max_delete_batch", 500)
	v.SetDefault("tax_rate", 0.13)

	v.SetEnvPrefix("POSSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("possync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.possync")
		v.AddConfigPath("/etc/possync")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when nothing was named explicitly; the
		// environment can carry everything.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant_id is required (set it in the config file or POSSYNC_TENANT_ID)")
	}
	if c.RemoteURL == "" {
		return fmt.Errorf("remote_url is required (set it in the config file or POSSYNC_REMOTE_URL)")
	}
	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("tax_rate %.2f is out of range [0, 1)", c.TaxRate)
	}
	if c.MaxDeleteBatch <= 0 {
		return fmt.Errorf("max_delete_batch must be positive (got %d)", c.MaxDeleteBatch)
	}
	return nil
}

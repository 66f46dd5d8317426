// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Runlog  RunlogConfig  `mapstructure:"runlog"`
	Portal  PortalConfig  `mapstructure:"portal"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StoreConfig controls the snapshot database.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Cache  bool   `mapstructure:"cache"`
}

// RunlogConfig controls where sync runs are recorded. An empty DSN keeps
// runs in process memory.
type RunlogConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// PortalConfig holds the upstream portal endpoint and credentials.
type PortalConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	CredentialFile string `mapstructure:"credential_file"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	AuthTTLMinutes int    `mapstructure:"auth_ttl_minutes"`
}

// SyncConfig governs the crawl pool and its scope.
type SyncConfig struct {
	InstitutionID    int `mapstructure:"institution_id"`
	Workers          int `mapstructure:"workers"`
	FirstYear        int `mapstructure:"first_year"`
	LastYear         int `mapstructure:"last_year"`
	Phases           int `mapstructure:"phases"`
	RetryAttempts    int `mapstructure:"retry_attempts"`
	RetryBaseMs      int `mapstructure:"retry_base_ms"`
	RetryCeilingSecs int `mapstructure:"retry_ceiling_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAMPUSCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "campuscrawl.db")
	v.SetDefault("store.cache", true)
	v.SetDefault("portal.base_url", "https://clip.unl.pt")
	v.SetDefault("portal.timeout_seconds", 30)
	v.SetDefault("portal.auth_ttl_minutes", 15)
	v.SetDefault("sync.institution_id", 97747)
	v.SetDefault("sync.workers", 8)
	v.SetDefault("sync.phases", 3)
	v.SetDefault("sync.retry_attempts", 10)
	v.SetDefault("sync.retry_base_ms", 250)
	v.SetDefault("sync.retry_ceiling_seconds", 60)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return fmt.Errorf("store.driver must be sqlite or postgres")
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set")
	}
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url must be set")
	}
	if c.Sync.InstitutionID <= 0 {
		return fmt.Errorf("sync.institution_id must be > 0")
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be > 0")
	}
	if c.Portal.TimeoutSeconds <= 0 {
		return fmt.Errorf("portal.timeout_seconds must be > 0")
	}
	if c.Sync.FirstYear != 0 && c.Sync.LastYear != 0 && c.Sync.FirstYear > c.Sync.LastYear {
		return fmt.Errorf("sync.first_year must not exceed sync.last_year")
	}
	return nil
}

// PortalTimeout converts the portal timeout into a duration.
func (c Config) PortalTimeout() time.Duration {
	return time.Duration(c.Portal.TimeoutSeconds) * time.Second
}

// PortalAuthTTL converts the login lifetime into a duration.
func (c Config) PortalAuthTTL() time.Duration {
	return time.Duration(c.Portal.AuthTTLMinutes) * time.Minute
}

// RetryBase converts the retry base delay into a duration.
func (c Config) RetryBase() time.Duration {
	return time.Duration(c.Sync.RetryBaseMs) * time.Millisecond
}

// RetryCeiling converts the retry ceiling into a duration.
func (c Config) RetryCeiling() time.Duration {
	return time.Duration(c.Sync.RetryCeilingSecs) * time.Second
}

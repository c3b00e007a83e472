// Package config loads runtime configuration from environment variables
// (primary) with a YAML file fallback, using a
// viper+godotenv+mapstructure loading shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ServerConfig controls the Control API's HTTP listener.
type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
}

// StoreConfig controls the SQLite-backed Store.
type StoreConfig struct {
	Path              string        `mapstructure:"path" yaml:"path"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections"`
	BusyTimeout       time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
	RetentionDays     int           `mapstructure:"retention_days" yaml:"retention_days"`
	MetricRetentionDays int         `mapstructure:"metric_retention_days" yaml:"metric_retention_days"`
}

// ForumConfig controls the Forum Client's backend selection and credentials.
type ForumConfig struct {
	Mode        string `mapstructure:"mode" yaml:"mode"` // api, public, mock
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	UserAgent   string `mapstructure:"user_agent" yaml:"user_agent"`
}

// AdmissionConfig controls pacing defaults and the shared-variant backend.
type AdmissionConfig struct {
	Mode        string  `mapstructure:"mode" yaml:"mode"` // local, shared
	RedisAddr   string  `mapstructure:"redis_addr" yaml:"redis_addr"`
	MinRate     float64 `mapstructure:"min_rate" yaml:"min_rate"`
	MaxRate     float64 `mapstructure:"max_rate" yaml:"max_rate"`
	InitialRate float64 `mapstructure:"initial_rate" yaml:"initial_rate"`
}

// RetentionConfig controls the scheduled GC job.
type RetentionConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
}

// Config aggregates every sub-configuration, using the
// pointer-of-sub-struct aggregation shape.
type Config struct {
	Server     *ServerConfig     `mapstructure:"server" yaml:"server"`
	Store      *StoreConfig      `mapstructure:"store" yaml:"store"`
	Forum      *ForumConfig      `mapstructure:"forum" yaml:"forum"`
	Admission  *AdmissionConfig  `mapstructure:"admission" yaml:"admission"`
	Retention  *RetentionConfig  `mapstructure:"retention" yaml:"retention"`
	LogLevel   string            `mapstructure:"log_level" yaml:"log_level"`
	LogEncoding string           `mapstructure:"log_encoding" yaml:"log_encoding"`
}

// Load reads .env (if present), then a config file at path (if non-empty
// and present), then environment variables, applying defaults for
// anything left unset. Environment variables take precedence over the
// config file. Only server.address, store.path, store.max_connections,
// forum.mode, admission.mode and log_level are taken from the config
// file; every other setting, the forum credentials included, comes from
// the defaults or the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("REDDITPULSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if v.ConfigFileUsed() != "" {
		var fileCfg Config
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &fileCfg,
			TagName: "mapstructure",
		})
		if err != nil {
			return nil, fmt.Errorf("config: decoder: %w", err)
		}
		if err := decoder.Decode(v.AllSettings()); err != nil {
			return nil, fmt.Errorf("config: decode: %w", err)
		}
		mergeNonZero(cfg, &fileCfg)
		applyEnvOverrides(cfg) // env still wins over file
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{Address: ":8080"},
		Store: &StoreConfig{
			Path:                "./redditpulse.db",
			MaxConnections:      20,
			BusyTimeout:         30 * time.Second,
			RetentionDays:       90,
			MetricRetentionDays: 14,
		},
		Forum: &ForumConfig{
			Mode:      "mock",
			UserAgent: "redditpulse-scraper/1.0",
		},
		Admission: &AdmissionConfig{
			Mode:        "local",
			MinRate:     0.1,
			MaxRate:     5.0,
			InitialRate: 1.0,
		},
		Retention: &RetentionConfig{
			Schedule: "@daily",
			Enabled:  true,
		},
		LogLevel:    "info",
		LogEncoding: "console",
	}
}

// getConfigValue applies env-first, then a provided fallback.
func getConfigValue(envKey, fallback string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}

func applyEnvOverrides(c *Config) {
	c.Server.Address = getConfigValue("SERVER_ADDRESS", c.Server.Address)
	c.Store.Path = getConfigValue("STORE_PATH", c.Store.Path)
	if v := os.Getenv("STORE_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Store.MaxConnections = n
		}
	}
	c.Forum.Mode = getConfigValue("FORUM_MODE", c.Forum.Mode)
	c.Forum.ClientID = getConfigValue("FORUM_CLIENT_ID", c.Forum.ClientID)
	c.Forum.ClientSecret = getConfigValue("FORUM_CLIENT_SECRET", c.Forum.ClientSecret)
	c.Forum.Username = getConfigValue("FORUM_USERNAME", c.Forum.Username)
	c.Forum.Password = getConfigValue("FORUM_PASSWORD", c.Forum.Password)
	c.Forum.UserAgent = getConfigValue("FORUM_USER_AGENT", c.Forum.UserAgent)
	c.Admission.Mode = getConfigValue("ADMISSION_MODE", c.Admission.Mode)
	c.Admission.RedisAddr = getConfigValue("ADMISSION_REDIS_ADDR", c.Admission.RedisAddr)
	c.LogLevel = getConfigValue("LOG_LEVEL", c.LogLevel)
	c.LogEncoding = getConfigValue("LOG_ENCODING", c.LogEncoding)
}

func mergeNonZero(dst, src *Config) {
	if src.Server != nil && src.Server.Address != "" {
		dst.Server.Address = src.Server.Address
	}
	if src.Store != nil {
		if src.Store.Path != "" {
			dst.Store.Path = src.Store.Path
		}
		if src.Store.MaxConnections != 0 {
			dst.Store.MaxConnections = src.Store.MaxConnections
		}
	}
	if src.Forum != nil && src.Forum.Mode != "" {
		dst.Forum.Mode = src.Forum.Mode
	}
	if src.Admission != nil && src.Admission.Mode != "" {
		dst.Admission.Mode = src.Admission.Mode
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// Validate rejects configuration that would make the process unstartable,
// corresponding to exit code 1 ("fatal init") at the process boundary.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path must not be empty")
	}
	if c.Store.MaxConnections <= 0 {
		return fmt.Errorf("config: store.max_connections must be positive")
	}
	switch c.Forum.Mode {
	case "api", "public", "mock":
	default:
		return fmt.Errorf("config: forum.mode must be one of api|public|mock, got %q", c.Forum.Mode)
	}
	switch c.Admission.Mode {
	case "local", "shared":
	default:
		return fmt.Errorf("config: admission.mode must be one of local|shared, got %q", c.Admission.Mode)
	}
	if c.Admission.Mode == "shared" && c.Admission.RedisAddr == "" {
		return fmt.Errorf("config: admission.redis_addr is required when admission.mode=shared")
	}
	return nil
}

// NonSecretView strips credentials for the /config endpoint.
func (c *Config) NonSecretView() map[string]any {
	return map[string]any{
		"server": map[string]any{"address": c.Server.Address},
		"store": map[string]any{
			"path":            c.Store.Path,
			"max_connections": c.Store.MaxConnections,
			"retention_days":  c.Store.RetentionDays,
		},
		"forum": map[string]any{
			"mode":       c.Forum.Mode,
			"user_agent": c.Forum.UserAgent,
		},
		"admission": map[string]any{
			"mode":     c.Admission.Mode,
			"min_rate": c.Admission.MinRate,
			"max_rate": c.Admission.MaxRate,
		},
		"retention": map[string]any{
			"schedule": c.Retention.Schedule,
			"enabled":  c.Retention.Enabled,
		},
		"log_level": c.LogLevel,
	}
}

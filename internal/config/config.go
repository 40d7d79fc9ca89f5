package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// COLLABD_LOCK_DURATION_MINUTES for lock.duration_minutes.
const EnvPrefix = "COLLABD"

// Config represents the complete collabd configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Lock    LockConfig    `mapstructure:"lock" yaml:"lock"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `mapstructure:"addr" yaml:"addr"`
	// ShutdownTimeoutSeconds bounds graceful shutdown (default: 10)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// GatewayConfig controls the websocket gateway
type GatewayConfig struct {
	// AllowedOrigins are glob patterns matched against the Origin header,
	// e.g. "https://*.example.com". Empty means same-host only.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// SendBuffer is the per-connection outbound queue length (default: 256)
	SendBuffer int `mapstructure:"send_buffer" yaml:"send_buffer"`
	// Identity names the trusted headers injected by the authenticating proxy
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
}

// IdentityConfig names the trusted identity headers
type IdentityConfig struct {
	UserIDHeader   string `mapstructure:"user_id_header" yaml:"user_id_header"`
	UserNameHeader string `mapstructure:"user_name_header" yaml:"user_name_header"`
	EmailHeader    string `mapstructure:"email_header" yaml:"email_header"`
	AvatarHeader   string `mapstructure:"avatar_header" yaml:"avatar_header"`
}

// SessionConfig controls session lifetime and history
type SessionConfig struct {
	// IdleTimeoutMinutes is how long an empty session is kept before eviction (default: 30)
	IdleTimeoutMinutes int `mapstructure:"idle_timeout_minutes" yaml:"idle_timeout_minutes"`
	// HistoryLimit caps the retained change history per session (default: 1000)
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`
	// SweepIntervalSeconds is how often expired locks and idle sessions are swept (default: 30)
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" yaml:"sweep_interval_seconds"`
}

// LockConfig controls field locks
type LockConfig struct {
	// DurationMinutes is the lock lifetime (default: 5). Applied live on config reload.
	DurationMinutes int `mapstructure:"duration_minutes" yaml:"duration_minutes"`
	// Enforce rejects changes to fields locked by another user (default: false)
	Enforce bool `mapstructure:"enforce" yaml:"enforce"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info").
	// Applied live on config reload.
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for collabd.log. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                   ":8080",
			ShutdownTimeoutSeconds: 10,
		},
		Gateway: GatewayConfig{
			AllowedOrigins: []string{},
			SendBuffer:     256,
			Identity: IdentityConfig{
				UserIDHeader:   "X-User-ID",
				UserNameHeader: "X-User-Name",
				EmailHeader:    "X-User-Email",
				AvatarHeader:   "X-User-Avatar",
			},
		},
		Session: SessionConfig{
			IdleTimeoutMinutes:   30,
			HistoryLimit:         1000,
			SweepIntervalSeconds: 30,
		},
		Lock: LockConfig{
			DurationMinutes: 5,
			Enforce:         false,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
	}
}

// ShutdownTimeout returns the graceful shutdown bound as a time.Duration
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// IdleTimeout returns the session idle timeout as a time.Duration
func (c *SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// SweepInterval returns the sweep interval as a time.Duration
func (c *SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Duration returns the lock lifetime as a time.Duration
func (c *LockConfig) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("server.addr", defaults.Server.Addr)
	viper.SetDefault("server.shutdown_timeout_seconds", defaults.Server.ShutdownTimeoutSeconds)

	viper.SetDefault("gateway.allowed_origins", defaults.Gateway.AllowedOrigins)
	viper.SetDefault("gateway.send_buffer", defaults.Gateway.SendBuffer)
	viper.SetDefault("gateway.identity.user_id_header", defaults.Gateway.Identity.UserIDHeader)
	viper.SetDefault("gateway.identity.user_name_header", defaults.Gateway.Identity.UserNameHeader)
	viper.SetDefault("gateway.identity.email_header", defaults.Gateway.Identity.EmailHeader)
	viper.SetDefault("gateway.identity.avatar_header", defaults.Gateway.Identity.AvatarHeader)

	viper.SetDefault("session.idle_timeout_minutes", defaults.Session.IdleTimeoutMinutes)
	viper.SetDefault("session.history_limit", defaults.Session.HistoryLimit)
	viper.SetDefault("session.sweep_interval_seconds", defaults.Session.SweepIntervalSeconds)

	viper.SetDefault("lock.duration_minutes", defaults.Lock.DurationMinutes)
	viper.SetDefault("lock.enforce", defaults.Lock.Enforce)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "collabd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".collabd"
	}
	return filepath.Join(home, ".config", "collabd")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Package config loads OSA's YAML configuration into strongly typed
// structs, applying defaults for anything left unset.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Session  SessionConfig  `yaml:"session"`
	LLM      LLMConfig      `yaml:"llm"`
	Tools    ToolsConfig    `yaml:"tools"`
	Cron     CronConfig     `yaml:"cron"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sidecar  SidecarConfig  `yaml:"sidecar"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// GatewayConfig controls session dispatch.
type GatewayConfig struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`
}

// DatabaseConfig configures the Durable Task Queue's optional Postgres
// backing store. An empty URL keeps the embedded sqlite store.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig configures the optional HMAC-SHA256 bearer JWT.
type AuthConfig struct {
	Enabled     bool          `yaml:"enabled"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// SessionConfig controls the config directory layout describes.
type SessionConfig struct {
	// ConfigDir holds identity/soul/user markdown, the memory file, a
	// sessions subdirectory of {session_id}.jsonl logs, an os-templates
	// subdirectory, and a binaries subdirectory for sidecars. Defaults to
	// ~/.osa.
	ConfigDir string `yaml:"config_dir"`

	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// LLMConfig selects the default provider/model and retry policy.
type LLMConfig struct {
	DefaultProvider string        `yaml:"default_provider"`
	DefaultModel    string        `yaml:"default_model"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
}

// ToolsConfig bounds tool execution and capability filtering.
type ToolsConfig struct {
	ExecTimeout    time.Duration `yaml:"exec_timeout"`
	ModelSizeBytes int64         `yaml:"model_size_bytes"`
}

// CronConfig schedules the Proactive Monitor.
type CronConfig struct {
	Interval  string `yaml:"interval"`
	MaxAlerts int    `yaml:"max_alerts"`
}

// TasksConfig tunes the Durable Task Queue's lease reaper.
type TasksConfig struct {
	LeaseDuration time.Duration `yaml:"lease_duration"`
	ReapInterval  time.Duration `yaml:"reap_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

// LoggingConfig controls the structured logger's verbosity/format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SidecarConfig locates the optional sidecar binary. An absent
// binary puts the port in unavailable mode; this is not an error.
type SidecarConfig struct {
	BinaryPath   string        `yaml:"binary_path"`
	RestartDelay time.Duration `yaml:"restart_delay"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	configDir := filepath.Join(home, ".osa")

	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", HTTPPort: 8080, MetricsPort: 9090},
		Gateway: GatewayConfig{MaxConcurrentSessions: 256},
		Session: SessionConfig{ConfigDir: configDir, IdleTimeout: 2 * time.Hour},
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
			DefaultModel: "claude-sonnet-4",
			MaxRetries: 3,
			RetryBackoff: 250 * time.Millisecond,
		},
		Tools: ToolsConfig{ExecTimeout: 30 * time.Second},
		Cron: CronConfig{Interval: "@every 30m", MaxAlerts: 50},
		Tasks: TasksConfig{
			LeaseDuration: 5 * time.Minute,
			ReapInterval: 60 * time.Second,
			MaxAttempts: 5,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// SessionsDir is the subdirectory of ConfigDir holding {session_id}.jsonl
// logs.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.Session.ConfigDir, "sessions")
}

// OSTemplatesDir is the subdirectory of ConfigDir holding OS-template
// JSON manifests.
func (c *Config) OSTemplatesDir() string {
	return filepath.Join(c.Session.ConfigDir, "os-templates")
}

// BinariesDir is the subdirectory of ConfigDir holding sidecar binaries.
func (c *Config) BinariesDir() string {
	return filepath.Join(c.Session.ConfigDir, "binaries")
}

// IdentityFile, MemoryFile, UserFile are the well-known markdown files
// directly under ConfigDir.
func (c *Config) IdentityFile() string { return filepath.Join(c.Session.ConfigDir, "identity.md") }
func (c *Config) MemoryFile() string { return filepath.Join(c.Session.ConfigDir, "memory.md") }
func (c *Config) UserFile() string { return filepath.Join(c.Session.ConfigDir, "user.md") }

// Package config provides configuration loading for vecfs.
//
// Configuration comes from a YAML file overridden by VECFS_ environment
// variables. Defaults fill whatever neither source sets.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config holds the complete vecfs configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Storage       StorageConfig       `koanf:"storage"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	VectorFS      VectorFSConfig      `koanf:"vectorfs"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	MCP           MCPConfig           `koanf:"mcp"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend string `koanf:"backend"`
	// Path is the sqlite file or the badger directory.
	Path string `koanf:"path"`
	// InMemory runs badger without touching disk.
	InMemory bool `koanf:"in_memory"`
	// AccessLogLimit is the default number of access logs returned per listing.
	AccessLogLimit int `koanf:"access_log_limit"`
	// AccessLogRetention is how many access logs each profile keeps.
	// Negative keeps every entry.
	AccessLogRetention int `koanf:"access_log_retention"`
}

// EmbeddingsConfig configures the embedding generator.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
	CacheDir  string `koanf:"cache_dir"`
	// RateLimit caps provider calls per second. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// VectorFSConfig configures the filesystem engine.
type VectorFSConfig struct {
	// NodeName is the node identity, e.g. "@@node1.shinkai".
	NodeName string `koanf:"node_name"`
	// Profiles are loaded, and initialized when missing, on startup.
	Profiles []string `koanf:"profiles"`
	// SupportedModels lists extra embedding models accepted on save.
	SupportedModels []string `koanf:"supported_models"`
	// DefaultFolders is the seed layout for new profiles. Empty seeds nothing.
	DefaultFolders []string `koanf:"default_folders"`
	// SeedDefaultFolders toggles the seed policy.
	SeedDefaultFolders bool `koanf:"seed_default_folders"`
	// RedactSecrets scrubs secrets from ingested text before it is embedded.
	RedactSecrets bool `koanf:"redact_secrets"`
	// SecretsAllowlist is a gitleaks style TOML file of patterns never redacted.
	SecretsAllowlist string `koanf:"secrets_allowlist"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
	// AlwaysSample lists root span names exported regardless of SamplingRate.
	AlwaysSample []string `koanf:"always_sample"`
}

// MCPConfig configures `vecfsd mcp`.
type MCPConfig struct {
	// Requester is the full name every tool call acts as, e.g.
	// "@@node1.shinkai/main". Defaults to the first configured profile.
	Requester string `koanf:"requester"`
}

// LoggingConfig holds the logging settings read from file and environment.
// cmd/vecfsd maps it onto logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// Components sets levels for named loggers, e.g. vectorfs: debug.
	Components map[string]string `koanf:"components"`
	OTEL       bool              `koanf:"otel"`
	Sampling   bool              `koanf:"sampling"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - The storage backend is unknown or lacks a path
//   - The node name is empty
//   - Service name is empty (when telemetry is enabled)
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage path required for sqlite backend")
		}
	case BackendBadger:
		if c.Storage.Path == "" && !c.Storage.InMemory {
			return errors.New("storage path required for badger backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want memory, sqlite or badger)", c.Storage.Backend)
	}

	if c.VectorFS.NodeName == "" {
		return errors.New("vectorfs node name is required")
	}
	if c.Embeddings.Dimension < 0 {
		return errors.New("embedding dimension cannot be negative")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 20
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend == BackendSQLite {
		cfg.Storage.Path = "~/.config/vecfs/vecfs.db"
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend == BackendBadger && !cfg.Storage.InMemory {
		cfg.Storage.Path = "~/.config/vecfs/badger"
	}
	if cfg.Storage.AccessLogLimit == 0 {
		cfg.Storage.AccessLogLimit = 1000
	}
	if cfg.Storage.AccessLogRetention == 0 {
		cfg.Storage.AccessLogRetention = 10000
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.BaseURL == "" && cfg.Embeddings.Provider == "tei" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.VectorFS.NodeName == "" {
		cfg.VectorFS.NodeName = "@@localhost.shinkai"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "vecfs"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

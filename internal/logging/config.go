package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/vecfs/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level zapcore.Level `koanf:"level"`
	// Components overrides Level for named loggers and their children,
	// e.g. "vectorfs": debug.
	Components map[string]zapcore.Level `koanf:"components"`
	Format     string                   `koanf:"format"`
	Output     OutputConfig             `koanf:"output"`
	Sampling   SamplingConfig           `koanf:"sampling"`
	Caller     CallerConfig             `koanf:"caller"`
	Stacktrace StacktraceConfig         `koanf:"stacktrace"`
	Fields     map[string]string        `koanf:"fields"`
	Redaction  RedactionConfig          `koanf:"redaction"`
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool `koanf:"stdout"`
	OTEL   bool `koanf:"otel"`

	// Stderr sends the console output to stderr instead of stdout.
	Stderr bool `koanf:"stderr"`
}

// SamplingConfig limits repeated messages below Error. Each message gets
// Initial entries per Tick, then every Thereafter-th; zero drops the rest.
type SamplingConfig struct {
	Enabled    bool            `koanf:"enabled"`
	Tick       config.Duration `koanf:"tick"`
	Initial    int             `koanf:"initial"`
	Thereafter int             `koanf:"thereafter"`
	// Events overrides the rate for individual messages.
	Events map[string]EventSampling `koanf:"events"`
	// Always lists messages that are never sampled.
	Always []string `koanf:"always"`
}

// EventSampling is the per tick rate of one message.
type EventSampling struct {
	Initial    int `koanf:"initial"`
	Thereafter int `koanf:"thereafter"`
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level zapcore.Level `koanf:"level"`
}

// RedactionConfig controls what the stdout encoder hides. Fields are
// replaced outright, Hashed fields become a stable digest so one requester
// can still be followed through the logs, and Patterns redact matching
// string values under any key.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Fields   []string `koanf:"fields"`
	Hashed   []string `koanf:"hashed"`
	Patterns []string `koanf:"patterns"`
}

// NewDefaultConfig returns the daemon defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{
			Stdout: true,
			OTEL:   false,
		},
		Sampling: DefaultSamplingConfig(),
		Caller: CallerConfig{
			Enabled: true,
			Skip:    1,
		},
		Stacktrace: StacktraceConfig{
			Level: zapcore.ErrorLevel,
		},
		Fields: map[string]string{
			"service": "vecfs",
		},
		Redaction: DefaultRedactionConfig(),
	}
}

// DefaultRedactionConfig hides provider credentials and hashes the
// identities of requesters and whitelisted names.
func DefaultRedactionConfig() RedactionConfig {
	return RedactionConfig{
		Enabled: true,
		Fields: []string{
			"api_key", "authorization", "token", "password", "secret",
		},
		Hashed: []string{
			"vfs.requester", "requester", "whitelist.name",
		},
		Patterns: []string{
			`(?i)bearer\s+\S+`,
			`\bsk-[A-Za-z0-9_-]{16,}`,
			`\bAKIA[0-9A-Z]{16}\b`,
		},
	}
}

// DefaultSamplingConfig keeps every permission denial and failed persist,
// and thins the per request and per item messages of busy servers.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Second),
		Initial:    100,
		Thereafter: 10,
		Events: map[string]EventSampling{
			"http request":             {Initial: 50, Thereafter: 20},
			"deep search skipped item": {Initial: 10, Thereafter: 0},
			"resource saved":           {Initial: 50, Thereafter: 10},
		},
		Always: []string{
			"reader denied",
			"writer denied",
			"redacted secrets from item",
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout or otel)")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick.Duration() <= 0 {
			return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
		}
		if c.Sampling.Initial < 0 || c.Sampling.Thereafter < 0 {
			return fmt.Errorf("sampling rates must be >= 0")
		}
		for msg, r := range c.Sampling.Events {
			if r.Initial < 0 || r.Thereafter < 0 {
				return fmt.Errorf("sampling rate for %q must be >= 0", msg)
			}
		}
	}

	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}
	if c.Redaction.Enabled {
		if _, err := compilePatterns(c.Redaction.Patterns); err != nil {
			return err
		}
		hashed := make(map[string]bool, len(c.Redaction.Hashed))
		for _, k := range c.Redaction.Hashed {
			hashed[strings.ToLower(k)] = true
		}
		for _, k := range c.Redaction.Fields {
			if hashed[strings.ToLower(k)] {
				return fmt.Errorf("redaction field %q is also hashed", k)
			}
		}
	}
	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	for name := range c.Components {
		if name == "" {
			return fmt.Errorf("component name cannot be empty")
		}
	}
	return nil
}

// FromAppConfig builds a logging Config from the application config section.
func FromAppConfig(app config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()
	if app.Level != "" {
		level, err := LevelFromString(app.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", app.Level, err)
		}
		cfg.Level = level
	}
	if app.Format != "" {
		cfg.Format = app.Format
	}
	components, err := ParseComponentLevels(app.Components)
	if err != nil {
		return nil, err
	}
	cfg.Components = components
	cfg.Output.OTEL = app.OTEL
	cfg.Sampling.Enabled = app.Sampling
	return cfg, cfg.Validate()
}

package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/vecfs/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Output.Stdout)
	assert.False(t, cfg.Output.OTEL)
	assert.True(t, cfg.Sampling.Enabled)
	assert.Equal(t, time.Second, cfg.Sampling.Tick.Duration())
	assert.True(t, cfg.Redaction.Enabled)
	assert.True(t, cfg.Caller.Enabled)
	assert.Equal(t, 1, cfg.Caller.Skip)
	assert.Equal(t, zapcore.ErrorLevel, cfg.Stacktrace.Level)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"invalid format", func(c *Config) { c.Format = "xml" }, "format must be 'json' or 'console'"},
		{"no output", func(c *Config) { c.Output = OutputConfig{} }, "at least one output must be enabled"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = config.Duration(0) }, "sampling tick must be > 0"},
		{"negative default rate", func(c *Config) { c.Sampling.Thereafter = -1 }, "sampling rates must be >= 0"},
		{"negative event rate", func(c *Config) {
			c.Sampling.Events["http request"] = EventSampling{Initial: -1}
		}, `sampling rate for "http request"`},
		{"sampling disabled skips rates", func(c *Config) {
			c.Sampling.Enabled = false
			c.Sampling.Initial = -1
		}, ""},
		{"negative caller skip", func(c *Config) { c.Caller.Skip = -1 }, "caller skip must be >= 0"},
		{"caller disabled skips skip", func(c *Config) { c.Caller = CallerConfig{Skip: -1} }, ""},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"[invalid("} }, "invalid redaction pattern"},
		{"long pattern", func(c *Config) { c.Redaction.Patterns = []string{string(make([]byte, 1001))} }, "pattern too long"},
		{"redaction disabled skips patterns", func(c *Config) {
			c.Redaction.Enabled = false
			c.Redaction.Patterns = []string{"[invalid("}
		}, ""},
		{"field both hidden and hashed", func(c *Config) {
			c.Redaction.Hashed = append(c.Redaction.Hashed, "API_KEY")
		}, `"api_key" is also hashed`},
		{"empty field key", func(c *Config) { c.Fields = map[string]string{"": "vecfs"} }, "field key cannot be empty"},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"node": ""} }, "empty value"},
		{"no fields", func(c *Config) { c.Fields = nil }, ""},
		{"empty component", func(c *Config) {
			c.Components = map[string]zapcore.Level{"": zapcore.DebugLevel}
		}, "component name cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestDefaultSamplingConfig(t *testing.T) {
	cfg := DefaultSamplingConfig()

	assert.Equal(t, 100, cfg.Initial)
	assert.Equal(t, 10, cfg.Thereafter)
	assert.Equal(t, EventSampling{Initial: 50, Thereafter: 20}, cfg.rateFor("http request"))
	assert.Equal(t, EventSampling{Initial: 100, Thereafter: 10}, cfg.rateFor("profile initialized"))
	assert.Contains(t, cfg.Always, "reader denied")
	assert.Contains(t, cfg.Always, "writer denied")
}

func TestDefaultRedactionConfig(t *testing.T) {
	cfg := DefaultRedactionConfig()

	assert.Contains(t, cfg.Fields, "api_key")
	assert.Contains(t, cfg.Hashed, "vfs.requester")
	assert.Contains(t, cfg.Hashed, "whitelist.name")
	assert.NotContains(t, cfg.Hashed, "vfs.profile")
	_, err := compilePatterns(cfg.Patterns)
	require.NoError(t, err)
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "trace", Format: "console", OTEL: true})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Output.OTEL)
	assert.True(t, cfg.Output.Stdout)
	assert.False(t, cfg.Sampling.Enabled)
	assert.Equal(t, "vecfs", cfg.Fields["service"])

	_, err = FromAppConfig(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)

	cfg, err = FromAppConfig(config.LoggingConfig{Components: map[string]string{"vectorfs": "debug"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]zapcore.Level{"vectorfs": zapcore.DebugLevel}, cfg.Components)

	_, err = FromAppConfig(config.LoggingConfig{Components: map[string]string{"vectorfs": "chatty"}})
	assert.Error(t, err)

	_, err = FromAppConfig(config.LoggingConfig{Format: "xml"})
	assert.Error(t, err)
}

package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newDualCore tees the console or JSON output with the OTEL bridge, both
// redacted. NewLogger gates the pair with the configured levels.
func newDualCore(cfg *Config, otelProvider log.LoggerProvider, level zapcore.LevelEnabler) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Stdout {
		baseEncoder := newEncoder(cfg.Format)
		encoder, err := NewRedactingEncoder(baseEncoder, cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		writer := zapcore.AddSync(os.Stdout)
		if cfg.Output.Stderr {
			writer = zapcore.AddSync(os.Stderr)
		}
		cores = append(cores, zapcore.NewCore(encoder, writer, level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		otelCore, err := newRedactingCore(otelzap.NewCore("vecfs",
			otelzap.WithLoggerProvider(otelProvider),
		), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create otel core: %w", err)
		}
		cores = append(cores, otelCore)
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := zapcore.NewTee(cores...)
	return newSampledCore(core, cfg.Sampling), nil
}

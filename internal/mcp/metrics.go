package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

const instrumentationName = "github.com/fyrsmithlabs/vecfs/internal/mcp"

// Metrics holds the tool metrics of the MCP server.
type Metrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	invocations    metric.Int64Counter
	duration       metric.Float64Histogram
	errors         metric.Int64Counter
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.invocations, err = m.meter.Int64Counter(
		"vecfs.mcp.tool.invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create invocations counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"vecfs.mcp.tool.duration_seconds",
		metric.WithDescription("Duration of MCP tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"vecfs.mcp.tool.errors_total",
		metric.WithDescription("Total number of MCP tool errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.activeRequests, err = m.meter.Int64UpDownCounter(
		"vecfs.mcp.tool.active_requests",
		metric.WithDescription("Number of currently active MCP tool requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
}

// track records one tool call. Call the returned func with the call's error.
func (m *Metrics) track(ctx context.Context, tool string) func(error) {
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, 1, attrs)
	}
	return func(err error) {
		if m.activeRequests != nil {
			m.activeRequests.Add(ctx, -1, attrs)
		}
		m.RecordInvocation(ctx, tool, time.Since(start), err)
	}
}

// RecordInvocation records a tool invocation metric.
func (m *Metrics) RecordInvocation(ctx context.Context, tool string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("tool", tool)}
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		errorAttrs := append(attrs, attribute.String("reason", categorizeError(err)))
		m.errors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}
}

// categorizeError maps an error onto a low-cardinality reason.
func categorizeError(err error) string {
	var perm *vectorfs.PermissionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &perm):
		return "permission_denied"
	case errors.Is(err, vectorfs.ErrNoEntryAtPath), errors.Is(err, vectorfs.ErrProfileNameNonExistent):
		return "not_found"
	case errors.Is(err, vectorfs.ErrEntryAlreadyExists):
		return "conflict"
	case errors.Is(err, errInvalidArgument), errors.Is(err, vectorfs.ErrInvalidEntryName),
		errors.Is(err, vectorfs.ErrPathDoesNotPointAtFolder), errors.Is(err, vectorfs.ErrPathDoesNotPointAtItem):
		return "validation_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal_error"
	}
}

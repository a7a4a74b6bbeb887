package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

// Resource attribute keys describing the vecfsd instance.
const (
	AttrNode           = attribute.Key("vecfs.node")
	AttrStorageBackend = attribute.Key("vecfs.storage.backend")
)

// newResource describes the service. It is built standalone, not merged
// with resource.Default, whose semconv schema differs.
func newResource(cfg *Config) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.NodeName != "" {
		attrs = append(attrs, AttrNode.String(strings.ToLower(cfg.NodeName)), semconv.ServiceInstanceID(strings.ToLower(cfg.NodeName)))
	}
	if cfg.StorageBackend != "" {
		attrs = append(attrs, AttrStorageBackend.String(cfg.StorageBackend))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// newSampler keeps cfg.Sampling.Rate of root spans plus every root span
// named in cfg.Sampling.Always. Child spans follow their parent.
func newSampler(cfg SamplingConfig) trace.Sampler {
	var base trace.Sampler
	switch {
	case cfg.Rate >= 1.0:
		base = trace.AlwaysSample()
	case cfg.Rate <= 0:
		base = trace.NeverSample()
	default:
		base = trace.TraceIDRatioBased(cfg.Rate)
	}
	if len(cfg.Always) > 0 {
		always := make(map[string]bool, len(cfg.Always))
		for _, name := range cfg.Always {
			always[name] = true
		}
		base = spanNameSampler{always: always, fallback: base}
	}
	return trace.ParentBased(base)
}

type spanNameSampler struct {
	always   map[string]bool
	fallback trace.Sampler
}

func (s spanNameSampler) ShouldSample(p trace.SamplingParameters) trace.SamplingResult {
	if s.always[p.Name] {
		return trace.AlwaysSample().ShouldSample(p)
	}
	return s.fallback.ShouldSample(p)
}

func (s spanNameSampler) Description() string {
	return "SpanNameSampler{" + s.fallback.Description() + "}"
}

func tlsConfig(cfg *Config) *tls.Config {
	if cfg.Insecure || !cfg.TLSSkipVerify {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for internal CAs
}

func newSpanExporter(ctx context.Context, cfg *Config) (trace.SpanExporter, error) {
	var (
		exp trace.SpanExporter
		err error
	)
	switch cfg.Protocol {
	case "http/protobuf":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else if tc := tlsConfig(cfg); tc != nil {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tc))
		}
		exp, err = otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else if tc := tlsConfig(cfg); tc != nil {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tc)))
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	return exp, nil
}

// cumulative is required by Prometheus-style backends and overrides an
// inherited OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE.
func cumulative(metric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func newMetricReader(ctx context.Context, cfg *Config) (metric.Reader, error) {
	var (
		exp metric.Exporter
		err error
	)
	switch cfg.Protocol {
	case "http/protobuf":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			otlpmetrichttp.WithTemporalitySelector(cumulative),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		} else if tc := tlsConfig(cfg); tc != nil {
			opts = append(opts, otlpmetrichttp.WithTLSClientConfig(tc))
		}
		exp, err = otlpmetrichttp.New(ctx, opts...)
	default:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithTemporalitySelector(cumulative),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		} else if tc := tlsConfig(cfg); tc != nil {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(tc)))
		}
		exp, err = otlpmetricgrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	return metric.NewPeriodicReader(exp, metric.WithInterval(cfg.Metrics.ExportInterval.Duration())), nil
}

// stripScheme turns a URL into the host:port the HTTP exporters expect.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}

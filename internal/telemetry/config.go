package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/vecfs/internal/config"
	"github.com/fyrsmithlabs/vecfs/internal/identity"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool           `koanf:"enabled"`
	Endpoint       string         `koanf:"endpoint"`
	ServiceName    string         `koanf:"service_name"`
	ServiceVersion string         `koanf:"service_version"`
	Protocol       string         `koanf:"protocol"` // grpc or http/protobuf
	Insecure       bool           `koanf:"insecure"` // no TLS, local endpoints only
	TLSSkipVerify  bool           `koanf:"tls_skip_verify"`
	Sampling       SamplingConfig `koanf:"sampling"`
	Metrics        MetricsConfig  `koanf:"metrics"`
	Shutdown       ShutdownConfig `koanf:"shutdown"`

	// NodeName and StorageBackend describe the vecfsd instance on every
	// exported span and metric.
	NodeName       string `koanf:"-"`
	StorageBackend string `koanf:"-"`
}

// SamplingConfig controls trace sampling.
type SamplingConfig struct {
	// Rate is the share of root spans kept, 0.0-1.0.
	Rate float64 `koanf:"rate"`
	// Always lists root span names kept regardless of Rate.
	Always []string `koanf:"always"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Enabled        bool            `koanf:"enabled"`
	ExportInterval config.Duration `koanf:"export_interval"`
}

// ShutdownConfig controls graceful shutdown behavior.
type ShutdownConfig struct {
	Timeout config.Duration `koanf:"timeout"`
}

// NewDefaultConfig returns the defaults. Telemetry is off until an OTEL
// collector is configured through observability.enable_telemetry.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		ServiceName:    "vecfsd",
		ServiceVersion: "0.1.0",
		Protocol:       "grpc",
		Insecure:       true,
		Sampling: SamplingConfig{
			Rate:   1.0,
			Always: []string{"vectorfs.save"},
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: config.Duration(15 * time.Second),
		},
		Shutdown: ShutdownConfig{
			Timeout: config.Duration(5 * time.Second),
		},
	}
}

// Validate checks configuration for errors. A disabled config is valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required when telemetry is enabled")
	}
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set insecure=false for TLS or use a local endpoint (localhost/127.0.0.1)")
	}

	switch c.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("protocol must be grpc or http/protobuf, got %q", c.Protocol)
	}

	if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
		return fmt.Errorf("sampling.rate must be between 0 and 1, got %f", c.Sampling.Rate)
	}
	for _, name := range c.Sampling.Always {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("sampling.always contains an empty span name")
		}
	}
	if c.Metrics.Enabled && c.Metrics.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("metrics.export_interval must be positive when metrics enabled")
	}
	if c.Shutdown.Timeout.Duration() <= 0 {
		return fmt.Errorf("shutdown.timeout must be positive")
	}

	if c.NodeName != "" {
		node, err := identity.Parse(c.NodeName)
		if err != nil {
			return fmt.Errorf("node name: %w", err)
		}
		if node.HasProfile() {
			return fmt.Errorf("node name %q must not include a profile", c.NodeName)
		}
	}
	return nil
}

// isLocalEndpoint reports whether the endpoint host is a loopback address.
func (c *Config) isLocalEndpoint() bool {
	host := c.Endpoint

	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]:"); idx != -1 {
			host = host[1:idx]
		} else if strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}
	// Unbracketed IPv6 keeps its port; the ::1 prefix check covers it.

	return host == "localhost" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(c.Endpoint, "::1")
}

// FromAppConfig builds a telemetry Config from the daemon configuration.
func FromAppConfig(cfg *config.Config, version string) *Config {
	tc := NewDefaultConfig()
	obs := cfg.Observability
	tc.Enabled = obs.EnableTelemetry
	if obs.ServiceName != "" {
		tc.ServiceName = obs.ServiceName
	}
	if obs.Endpoint != "" {
		tc.Endpoint = obs.Endpoint
	}
	if obs.Protocol != "" {
		tc.Protocol = obs.Protocol
	}
	tc.Insecure = obs.Insecure
	if obs.SamplingRate > 0 {
		tc.Sampling.Rate = obs.SamplingRate
	}
	if obs.AlwaysSample != nil {
		tc.Sampling.Always = obs.AlwaysSample
	}
	if version != "" {
		tc.ServiceVersion = version
	}
	tc.NodeName = cfg.VectorFS.NodeName
	tc.StorageBackend = cfg.Storage.Backend
	return tc
}

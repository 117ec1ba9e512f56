package observability

import (
	"maps"
	"strings"
	"time"
)

const (
	// EndpointStdout is a special endpoint value that outputs to stdout (for local development).
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"

	// EnvironmentDevelopment is the default environment name for development mode.
	EnvironmentDevelopment = "development"

	defaultBatchTimeout    = 5 * time.Second
	defaultDevBatchTimeout = 500 * time.Millisecond
	defaultMetricsInterval = 60 * time.Second
	defaultExportTimeout   = 30 * time.Second
)

// BoolPtr returns a pointer to the provided bool value.
func BoolPtr(v bool) *bool {
	return &v
}

// Float64Ptr returns a pointer to the provided float64 value.
func Float64Ptr(v float64) *float64 {
	return &v
}

func cloneHeaderMap(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	clone := make(map[string]string, len(headers))
	maps.Copy(clone, headers)
	return clone
}

// Config defines the configuration for tracing and metrics export.
// It is loaded from the "observability" section of the application config.
type Config struct {
	// Enabled controls whether observability is active.
	// When false, all observability operations become no-ops.
	Enabled bool `koanf:"enabled" json:"enabled"`

	// Service contains service identification metadata.
	Service ServiceConfig `koanf:"service" json:"service"`

	// Environment indicates the deployment environment (e.g., production, staging, development).
	Environment string `koanf:"environment" json:"environment"`

	Trace   TraceConfig   `koanf:"trace" json:"trace"`
	Metrics MetricsConfig `koanf:"metrics" json:"metrics"`
}

// ServiceConfig contains service identification metadata.
type ServiceConfig struct {
	// Name identifies the service in traces and metrics.
	// This is required when observability is enabled.
	Name    string `koanf:"name" json:"name"`
	Version string `koanf:"version" json:"version"`
}

// TraceConfig configures span export.
type TraceConfig struct {
	// Enabled defaults to true when observability is enabled. Explicit false is preserved.
	Enabled *bool `koanf:"enabled" json:"enabled,omitempty"`
	// Endpoint is "stdout", a full URL for ProtocolHTTP, or host:port for ProtocolGRPC.
	Endpoint string            `koanf:"endpoint" json:"endpoint"`
	Protocol string            `koanf:"protocol" json:"protocol"`
	Insecure bool              `koanf:"insecure" json:"insecure"`
	Headers  map[string]string `koanf:"headers" json:"headers,omitempty"`
	// SampleRate is the fraction of traces recorded, in [0, 1]. Defaults to 1.
	SampleRate    *float64      `koanf:"sample_rate" json:"sample_rate,omitempty"`
	BatchTimeout  time.Duration `koanf:"batch_timeout" json:"batch_timeout"`
	ExportTimeout time.Duration `koanf:"export_timeout" json:"export_timeout"`
}

// MetricsConfig configures metric export. Protocol, Insecure and Headers
// fall back to the trace settings when empty.
type MetricsConfig struct {
	Enabled       *bool             `koanf:"enabled" json:"enabled,omitempty"`
	Endpoint      string            `koanf:"endpoint" json:"endpoint"`
	Protocol      string            `koanf:"protocol" json:"protocol"`
	Insecure      bool              `koanf:"insecure" json:"insecure"`
	Headers       map[string]string `koanf:"headers" json:"headers,omitempty"`
	Interval      time.Duration     `koanf:"interval" json:"interval"`
	ExportTimeout time.Duration     `koanf:"export_timeout" json:"export_timeout"`
}

// ApplyDefaults sets default values for any config fields that are not specified.
func (c *Config) ApplyDefaults() {
	if c.Service.Version == "" {
		c.Service.Version = "unknown"
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}
	c.applyTraceDefaults()
	c.applyMetricsDefaults()
}

func (c *Config) isDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

func (c *Config) applyTraceDefaults() {
	if c.Trace.Endpoint == "" {
		c.Trace.Endpoint = EndpointStdout
	}
	if c.Enabled && c.Trace.Enabled == nil {
		c.Trace.Enabled = BoolPtr(true)
	}
	if c.Trace.Protocol == "" {
		c.Trace.Protocol = ProtocolHTTP
	}
	if c.Trace.SampleRate == nil {
		c.Trace.SampleRate = Float64Ptr(1.0)
	}
	if c.Trace.BatchTimeout == 0 {
		if c.isDevelopment() || c.Trace.Endpoint == EndpointStdout {
			c.Trace.BatchTimeout = defaultDevBatchTimeout
		} else {
			c.Trace.BatchTimeout = defaultBatchTimeout
		}
	}
	if c.Trace.ExportTimeout == 0 {
		c.Trace.ExportTimeout = defaultExportTimeout
	}
}

func (c *Config) applyMetricsDefaults() {
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = c.Trace.Endpoint
	}
	if c.Enabled && c.Metrics.Enabled == nil {
		c.Metrics.Enabled = BoolPtr(true)
	}
	if c.Metrics.Protocol == "" {
		c.Metrics.Protocol = c.Trace.Protocol
	}
	if !c.Metrics.Insecure {
		c.Metrics.Insecure = c.Trace.Insecure
	}
	if c.Metrics.Headers == nil {
		c.Metrics.Headers = cloneHeaderMap(c.Trace.Headers)
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = defaultMetricsInterval
	}
	if c.Metrics.ExportTimeout == 0 {
		c.Metrics.ExportTimeout = defaultExportTimeout
	}
}

// Validate checks the configuration. A disabled configuration is always valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if err := validateExport(c.Trace.Endpoint, c.Trace.Protocol); err != nil {
		return err
	}
	if rate := c.Trace.SampleRate; rate != nil && (*rate < 0 || *rate > 1) {
		return ErrInvalidSampleRate
	}
	return validateExport(c.Metrics.Endpoint, c.Metrics.Protocol)
}

func validateExport(endpoint, protocol string) error {
	if protocol != "" && protocol != ProtocolHTTP && protocol != ProtocolGRPC {
		return ErrInvalidProtocol
	}
	return validateEndpointFormat(endpoint, protocol)
}

// validateEndpointFormat checks that the endpoint format matches the protocol.
// gRPC endpoints must use "host:port" format without a scheme.
// HTTP endpoints must include the http:// or https:// scheme.
func validateEndpointFormat(endpoint, protocol string) error {
	if endpoint == EndpointStdout || endpoint == "" {
		return nil
	}

	hasScheme := strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")

	if protocol == ProtocolGRPC && hasScheme {
		return ErrInvalidEndpointFormat
	}
	if protocol == ProtocolHTTP && !hasScheme {
		return ErrInvalidEndpointFormat
	}
	return nil
}

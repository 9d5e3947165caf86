package telemetry

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config contains the telemetry configuration for one mdrun invocation.
type Config struct {
	// ServiceName identifies this adapter in traces.
	ServiceName string `validate:"required"`

	// ServiceVersion is the build version.
	ServiceVersion string `validate:"required"`

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics configuration.
	Metrics MetricsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `validate:"omitempty,oneof=debug info warn error"`

	// Format specifies the log format (console, json).
	Format string `validate:"omitempty,oneof=console json"`

	// Output is "stderr" or a file path. Never stdout: that is the event
	// stream.
	Output string `validate:"omitempty,ne=stdout"`
}

// TracingConfig configures tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string `validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP gRPC endpoint.
	Endpoint string `validate:"required_if=Exporter otlp"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// ExportTimeout bounds trace export.
	ExportTimeout time.Duration
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Namespace is the metrics namespace prefix.
	Namespace string
}

// DefaultConfig returns the configuration used when the CLI passes nothing.
func DefaultConfig(serviceName, serviceVersion string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			ExportTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Namespace: "mdrun",
		},
	}
}

// Validate checks the configuration against its struct tags.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

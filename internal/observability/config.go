package observability

import "fmt"

// Config groups the observability settings of a run.
type Config struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, text
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr keeps
// metrics in-process only.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default observability configuration
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "tau",
			ServiceVersion: "dev",
		},
	}
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognised", c.Logging.Level)
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "", "otlp", "zipkin":
		default:
			return fmt.Errorf("tracing.exporter must be otlp or zipkin, got %q", c.Tracing.Exporter)
		}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1], got %v", c.Tracing.SampleRate)
	}
	return nil
}

// Logger builds the structured logger described by c.Logging.
func (c Config) Logger() *Logger {
	return NewLogger(LogConfig{Level: c.Logging.Level, Format: c.Logging.Format})
}

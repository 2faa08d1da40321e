package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.False(t, config.Metrics.Enabled)
	assert.False(t, config.Tracing.Enabled)
	assert.Equal(t, "otlp", config.Tracing.Exporter)
	assert.Equal(t, 1.0, config.Tracing.SampleRate)
	require.NoError(t, config.Validate())
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Format = "xml"
	require.Error(t, config.Validate())

	config = DefaultConfig()
	config.Tracing.Enabled = true
	config.Tracing.Exporter = "jaeger"
	require.ErrorContains(t, config.Validate(), "otlp or zipkin")

	config = DefaultConfig()
	config.Tracing.SampleRate = 1.5
	require.Error(t, config.Validate())
}

func TestLoggerWithContextAddsTrialFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: buf})

	ctx := ContextWithRunID(context.Background(), "run-1")
	ctx = ContextWithTrial(ctx, "12", 3)
	logger.WithContext(ctx).Info("trial finished", "reward", 1.0)

	out := buf.String()
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"task_id":"12"`)
	assert.Contains(t, out, `"trial":3`)
	assert.Contains(t, out, `"reward":1`)
}

func TestLoggerLevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LogConfig{Level: "warn", Output: buf})
	logger.Info("hidden")
	logger.Warn("shown")

	assert.False(t, strings.Contains(buf.String(), "hidden"))
	assert.True(t, strings.Contains(buf.String(), "shown"))
}

func TestTrialFromContext(t *testing.T) {
	_, _, ok := TrialFromContext(context.Background())
	assert.False(t, ok)

	taskID, trial, ok := TrialFromContext(ContextWithTrial(context.Background(), "7", 2))
	require.True(t, ok)
	assert.Equal(t, "7", taskID)
	assert.Equal(t, 2, trial)
}

func TestDisabledTracingIsNoop(t *testing.T) {
	tp, err := NewTracerProvider(TracingConfig{Enabled: false})
	require.NoError(t, err)

	ctx := ContextWithTrial(context.Background(), "1", 0)
	_, span := tp.StartSpan(ctx, SpanTrial)
	EndSpan(span, nil)
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := NewTracerProvider(TracingConfig{Enabled: true, Exporter: "jaeger"})
	require.ErrorContains(t, err, "unsupported exporter")
}

package observability

import (
	"testing"

	"github.com/smallbiznis/realvest/internal/config"
	"github.com/stretchr/testify/assert"
)

func clearObservabilityEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DEPLOYMENT_ENV", "SERVICE_VERSION", "LOG_LEVEL", "LOG_FORMAT",
		"OTEL_ENABLED", "OTEL_SAMPLING_RATIO", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_PROTOCOL", "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigLocalDefaults(t *testing.T) {
	clearObservabilityEnv(t)

	cfg := LoadConfig(config.Config{Environment: "development", AppVersion: "0.1.0", OTLPEndpoint: "localhost:4317"})
	assert.Equal(t, "realvest", cfg.ServiceName)
	assert.Equal(t, "0.1.0", cfg.Version)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigProductionExports(t *testing.T) {
	clearObservabilityEnv(t)
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP/protobuf")

	cfg := LoadConfig(config.Config{AppName: "realvest-api", Environment: "production", OTLPEndpoint: "otel:4318"})
	assert.Equal(t, "realvest-api", cfg.ServiceName)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.Equal(t, "otel:4318", cfg.OtelExporterEndpoint)
	assert.Equal(t, "http/protobuf", cfg.OtelExporterProtocol)
	assert.False(t, cfg.Debug())

	cfg = LoadConfig(config.Config{Environment: "production"})
	assert.False(t, cfg.OtelEnabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearObservabilityEnv(t)
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := LoadConfig(config.Config{Environment: "staging"})
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Debug())
}

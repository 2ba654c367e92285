package observability

import (
	"testing"

	"github.com/smallbiznis/schoolfee/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizesTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:  "production",
		AppVersion:   "1.2.0",
		OTLPEndpoint: " collector:4317 ",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "WARN",
			OtelProtocol:  "carrier-pigeon",
			SamplingRatio: 3,
		},
	})

	assert.Equal(t, "schoolfee", cfg.ServiceName)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 1e-9)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{LogLevel: "info", Environment: "local"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "staging"}.Debug())
}

func TestSplitConfigSharesIdentity(t *testing.T) {
	cfg := Config{ServiceName: "schoolfee", Environment: "staging", Version: "1.0.0", LogLevel: "info", OtelEnabled: true, OtelExporterProtocol: "http"}
	out := splitConfig(cfg)

	assert.Equal(t, "schoolfee", out.Logger.ServiceName)
	assert.False(t, out.Logger.IncludeStackOnError)
	assert.Equal(t, "1.0.0", out.Tracing.ServiceVersion)
	assert.Equal(t, "http", out.Metrics.ExporterProtocol)
	assert.True(t, out.Metrics.Enabled)
}

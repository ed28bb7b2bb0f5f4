package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"modelql/internal/config"
)

func TestOtelConfigMapsSignalOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Observability.ServiceName = "modelql"
	cfg.Observability.ServiceVersion = "1.2.3"
	cfg.Observability.Environment = "staging"
	cfg.Observability.TraceSampleRatio = 0.25
	cfg.Observability.OTLP = config.OTLPConfig{
		Endpoint: "collector:4317",
		Protocol: "grpc",
		Insecure: true,
		Timeout:  10 * time.Second,
	}
	cfg.Observability.Traces = &config.OTLPConfig{
		Endpoint: "traces:4318",
		Protocol: "http/protobuf",
	}

	base := otelConfig(cfg, cfg.Observability.OTLP)
	assert.Equal(t, "modelql", base.ServiceName)
	assert.Equal(t, "1.2.3", base.ServiceVersion)
	assert.Equal(t, "staging", base.Environment)
	assert.Equal(t, 0.25, base.TraceSampleRatio)
	assert.Equal(t, "collector:4317", base.OTLPConfig.Endpoint)
	assert.Equal(t, "grpc", base.OTLPConfig.Protocol)

	traces := otelConfig(cfg, cfg.Observability.GetTracesConfig())
	assert.Equal(t, "traces:4318", traces.OTLPConfig.Endpoint)
	assert.Equal(t, "http/protobuf", traces.OTLPConfig.Protocol)
	assert.Equal(t, 10*time.Second, traces.OTLPConfig.Timeout)
}

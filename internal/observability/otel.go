// Package observability provides OpenTelemetry integration for metrics,
// tracing, and logging. Metrics are served through a Prometheus registry;
// traces and logs go to OTLP exporters (gRPC or HTTP).
package observability

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// Config holds OpenTelemetry configuration.
type Config struct {
	ServiceName      string
	ServiceVersion   string
	Environment      string
	TraceSampleRatio float64
	OTLPConfig       OTLPExporterConfig
}

// OTLPExporterConfig holds OTLP exporter configuration options.
type OTLPExporterConfig struct {
	Endpoint          string
	Protocol          string
	Insecure          bool
	TLSCertFile       string
	TLSClientCertFile string
	TLSClientKeyFile  string
	Headers           map[string]string
	Timeout           time.Duration
	Compression       string
	RetryEnabled      bool
	RetryMaxAttempts  int
}

// serviceResource builds the shared resource attributes for every provider.
// The schema URL is left empty to avoid merge conflicts across SDK versions.
func serviceResource(cfg Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// MeterProvider wraps the OpenTelemetry meter provider together with the
// Prometheus registry backing its exporter.
type MeterProvider struct {
	provider *metric.MeterProvider
	registry *promclient.Registry
}

// InitMeterProvider initializes OpenTelemetry metrics with a Prometheus
// exporter backed by a dedicated registry.
func InitMeterProvider(cfg Config) (*MeterProvider, error) {
	res, err := serviceResource(cfg)
	if err != nil {
		return nil, err
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return &MeterProvider{
		provider: provider,
		registry: registry,
	}, nil
}

// Registry returns the Prometheus registry backing the exporter. Callers
// gather or serve metrics from it.
func (mp *MeterProvider) Registry() *promclient.Registry {
	return mp.registry
}

// Shutdown gracefully shuts down the meter provider.
func (mp *MeterProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := mp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown meter provider", slog.String("error", err.Error()))
		return err
	}

	logger.Info("meter provider shutdown successfully")
	return nil
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

type otlpProtocol string

const (
	otlpProtocolGRPC otlpProtocol = "grpc"
	otlpProtocolHTTP otlpProtocol = "http/protobuf"
)

func parseOTLPProtocol(value string) (otlpProtocol, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(otlpProtocolGRPC):
		return otlpProtocolGRPC, nil
	case "http", string(otlpProtocolHTTP):
		return otlpProtocolHTTP, nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol %q (use grpc or http/protobuf)", value)
	}
}

func buildTLSConfig(cfg OTLPExporterConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.TLSCertFile != "" {
		certPool := x509.NewCertPool()
		caCert, err := os.ReadFile(cfg.TLSCertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read OTLP TLS CA file: %w", err)
		}
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse OTLP TLS CA file")
		}
		tlsConfig.RootCAs = certPool
	}

	// Client certificate for mTLS.
	if cfg.TLSClientCertFile != "" || cfg.TLSClientKeyFile != "" {
		if cfg.TLSClientCertFile == "" || cfg.TLSClientKeyFile == "" {
			return nil, fmt.Errorf("OTLP TLS client cert and key must both be set")
		}
		cert, err := tls.LoadX509KeyPair(cfg.TLSClientCertFile, cfg.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load OTLP TLS client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func isHTTPEndpointURL(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}

func retryBackoff() (maxElapsed, maxInterval, initialInterval time.Duration) {
	return 30 * time.Second, 5 * time.Second, 1 * time.Second
}

func buildTracerExporterOptions(cfg OTLPExporterConfig) ([]otlptracegrpc.Option, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}

	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}
	if cfg.Compression == "gzip" {
		opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
	}
	if cfg.RetryEnabled && cfg.RetryMaxAttempts > 0 {
		maxElapsed, maxInterval, initialInterval := retryBackoff()
		opts = append(opts, otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			MaxElapsedTime:  maxElapsed,
			MaxInterval:     maxInterval,
			InitialInterval: initialInterval,
		}))
	}

	return opts, nil
}

func buildHTTPTracerExporterOptions(cfg OTLPExporterConfig) ([]otlptracehttp.Option, error) {
	opts := []otlptracehttp.Option{}

	if isHTTPEndpointURL(cfg.Endpoint) {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}

	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	} else {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsConfig))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(cfg.Timeout))
	}
	if cfg.Compression == "gzip" {
		opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
	}
	if cfg.RetryEnabled && cfg.RetryMaxAttempts > 0 {
		maxElapsed, maxInterval, initialInterval := retryBackoff()
		opts = append(opts, otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			MaxElapsedTime:  maxElapsed,
			MaxInterval:     maxInterval,
			InitialInterval: initialInterval,
		}))
	}

	return opts, nil
}

// InitTracerProvider initializes OpenTelemetry tracing with an OTLP exporter.
func InitTracerProvider(cfg Config) (*TracerProvider, error) {
	res, err := serviceResource(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	protocol, err := parseOTLPProtocol(cfg.OTLPConfig.Protocol)
	if err != nil {
		return nil, err
	}

	var traceExporter sdktrace.SpanExporter
	switch protocol {
	case otlpProtocolGRPC:
		exporterOpts, err := buildTracerExporterOptions(cfg.OTLPConfig)
		if err != nil {
			return nil, err
		}
		traceExporter, err = otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
	case otlpProtocolHTTP:
		exporterOpts, err := buildHTTPTracerExporterOptions(cfg.OTLPConfig)
		if err != nil {
			return nil, err
		}
		traceExporter, err = otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported OTLP trace protocol %q", cfg.OTLPConfig.Protocol)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(traceSamplerForRatio(cfg.TraceSampleRatio)),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{
		provider: provider,
	}, nil
}

func traceSamplerForRatio(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := tp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer provider", slog.String("error", err.Error()))
		return err
	}

	logger.Info("tracer provider shutdown successfully")
	return nil
}

// LoggerProvider wraps the OpenTelemetry logger provider.
type LoggerProvider struct {
	provider *log.LoggerProvider
}

func buildLoggerExporterOptions(cfg OTLPExporterConfig) ([]otlploggrpc.Option, error) {
	opts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(cfg.Endpoint),
	}

	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	} else {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlploggrpc.WithTimeout(cfg.Timeout))
	}
	if cfg.Compression == "gzip" {
		opts = append(opts, otlploggrpc.WithCompressor("gzip"))
	}
	if cfg.RetryEnabled && cfg.RetryMaxAttempts > 0 {
		maxElapsed, maxInterval, initialInterval := retryBackoff()
		opts = append(opts, otlploggrpc.WithRetry(otlploggrpc.RetryConfig{
			Enabled:         true,
			MaxElapsedTime:  maxElapsed,
			MaxInterval:     maxInterval,
			InitialInterval: initialInterval,
		}))
	}

	return opts, nil
}

func buildHTTPLoggerExporterOptions(cfg OTLPExporterConfig) ([]otlploghttp.Option, error) {
	opts := []otlploghttp.Option{}

	if isHTTPEndpointURL(cfg.Endpoint) {
		opts = append(opts, otlploghttp.WithEndpointURL(cfg.Endpoint))
	} else {
		opts = append(opts, otlploghttp.WithEndpoint(cfg.Endpoint))
	}

	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	} else {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, otlploghttp.WithTLSClientConfig(tlsConfig))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.Timeout))
	}
	if cfg.Compression == "gzip" {
		opts = append(opts, otlploghttp.WithCompression(otlploghttp.GzipCompression))
	}
	if cfg.RetryEnabled && cfg.RetryMaxAttempts > 0 {
		maxElapsed, maxInterval, initialInterval := retryBackoff()
		opts = append(opts, otlploghttp.WithRetry(otlploghttp.RetryConfig{
			Enabled:         true,
			MaxElapsedTime:  maxElapsed,
			MaxInterval:     maxInterval,
			InitialInterval: initialInterval,
		}))
	}

	return opts, nil
}

// InitLoggerProvider initializes OpenTelemetry logging with an OTLP exporter.
func InitLoggerProvider(cfg Config) (*LoggerProvider, error) {
	res, err := serviceResource(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	protocol, err := parseOTLPProtocol(cfg.OTLPConfig.Protocol)
	if err != nil {
		return nil, err
	}

	var logExporter log.Exporter
	switch protocol {
	case otlpProtocolGRPC:
		exporterOpts, err := buildLoggerExporterOptions(cfg.OTLPConfig)
		if err != nil {
			return nil, err
		}
		logExporter, err = otlploggrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
	case otlpProtocolHTTP:
		exporterOpts, err := buildHTTPLoggerExporterOptions(cfg.OTLPConfig)
		if err != nil {
			return nil, err
		}
		logExporter, err = otlploghttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported OTLP log protocol %q", cfg.OTLPConfig.Protocol)
	}

	provider := log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(logExporter)),
	)

	return &LoggerProvider{
		provider: provider,
	}, nil
}

// Shutdown gracefully shuts down the logger provider.
func (lp *LoggerProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := lp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown logger provider", slog.String("error", err.Error()))
		return err
	}

	logger.Info("logger provider shutdown successfully")
	return nil
}

// Provider returns the underlying logger provider.
func (lp *LoggerProvider) Provider() *log.LoggerProvider {
	return lp.provider
}

// modelcheck loads the configured schema model, compiles every entity's
// authorization rules, and verifies the database wiring. It is the startup
// path a transport would run before mounting the operation surface, exposed
// as a standalone command so schema authors get load-time failures without
// deploying anything.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"modelql/internal/config"
	"modelql/internal/crud"
	"modelql/internal/logging"
	"modelql/internal/model"
	"modelql/internal/naming"
	"modelql/internal/observability"
	"modelql/internal/sqlstore"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("modelcheck failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")
	pflag.Bool("skip-db", false, "Compile the model without connecting to the database")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("modelql %s (%s)\n", Version, Commit)
		return nil
	}
	skipDB, _ := pflag.CommandLine.GetBool("skip-db")

	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
		)
	}
	if validationResult.HasErrors() {
		for _, vErr := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", vErr.Field),
				slog.String("message", vErr.Message),
				slog.String("hint", vErr.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	logger, providers, err := initObservability(cfg)
	if err != nil {
		return err
	}
	defer providers.shutdown(logger)

	registry, err := model.Load(cfg.Model.Path)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	logger.Info("model loaded",
		slog.String("path", cfg.Model.Path),
		slog.Int("entities", len(registry.Entities())),
	)

	var st *sqlstore.Store
	if !skipDB {
		ctx := context.Background()
		if cfg.Database.ConnectionTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Database.ConnectionTimeout)
			defer cancel()
		}
		db, err := sqlstore.Open(ctx, sqlstore.OpenConfig{
			DSN:         cfg.Database.DSN(),
			MaxOpen:     cfg.Database.Pool.MaxOpen,
			MaxIdle:     cfg.Database.Pool.MaxIdle,
			MaxLifetime: cfg.Database.Pool.MaxLifetime,
			Instrument:  cfg.Observability.MetricsEnabled,
		}, logger.Logger)
		if err != nil {
			return err
		}
		defer db.Close()
		st = sqlstore.New(db, registry, logger.Logger)
	}

	opts := []crud.Option{
		crud.WithLogger(logger.Logger),
		crud.WithNamer(naming.New(cfg.Naming)),
	}
	if providers.metrics != nil {
		crudMetrics, err := observability.InitCRUDMetrics()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		opts = append(opts, crud.WithMetrics(crudMetrics))
	}

	engine, err := crud.New(registry, st, opts...)
	if err != nil {
		return fmt.Errorf("model check failed: %w", err)
	}

	for _, surface := range engine.Surfaces() {
		logger.Info("operation surface",
			slog.String("entity", surface.Entity),
			slog.String("find_one", surface.FindOne),
			slog.String("find_many", surface.FindMany),
			slog.String("connection", surface.Connection),
			slog.String("create_one", surface.CreateOne),
			slog.String("create_many", surface.CreateMany),
			slog.String("update_one", surface.UpdateOne),
			slog.String("update_many", surface.UpdateMany),
			slog.String("delete_one", surface.DeleteOne),
			slog.String("delete_many", surface.DeleteMany),
		)
	}

	logger.Info("model check passed",
		slog.Int("entities", len(registry.Entities())),
		slog.Bool("database_verified", !skipDB),
	)
	return nil
}

// providerSet holds the telemetry providers that need a shutdown pass.
type providerSet struct {
	metrics *observability.MeterProvider
	traces  *observability.TracerProvider
	logs    *observability.LoggerProvider
}

func (p providerSet) shutdown(logger *logging.Logger) {
	ctx := context.Background()
	if p.traces != nil {
		_ = p.traces.Shutdown(ctx, logger.Logger)
	}
	if p.metrics != nil {
		_ = p.metrics.Shutdown(ctx, logger.Logger)
	}
	if p.logs != nil {
		_ = p.logs.Shutdown(ctx, logger.Logger)
	}
}

// initObservability builds the logger and any enabled telemetry providers.
func initObservability(cfg *config.Config) (*logging.Logger, providerSet, error) {
	var providers providerSet

	logCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	if cfg.Observability.Logging.ExportsEnabled {
		lp, err := observability.InitLoggerProvider(otelConfig(cfg, cfg.Observability.GetLogsConfig()))
		if err != nil {
			return nil, providers, fmt.Errorf("failed to initialize log export: %w", err)
		}
		providers.logs = lp
		logCfg.LoggerProvider = lp.Provider()
	}
	logger := logging.NewLogger(logCfg)

	if cfg.Observability.MetricsEnabled {
		mp, err := observability.InitMeterProvider(otelConfig(cfg, cfg.Observability.OTLP))
		if err != nil {
			return nil, providers, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		providers.metrics = mp
	}

	if cfg.Observability.TracingEnabled {
		tp, err := observability.InitTracerProvider(otelConfig(cfg, cfg.Observability.GetTracesConfig()))
		if err != nil {
			return nil, providers, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		providers.traces = tp
	}

	return logger, providers, nil
}

// otelConfig maps the application config onto the observability package's
// provider config for one signal.
func otelConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

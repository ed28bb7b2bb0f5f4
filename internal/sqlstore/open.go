package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenConfig controls how the database handle is opened.
type OpenConfig struct {
	DSN         string
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	// Instrument wraps the driver with OpenTelemetry spans and pool metrics.
	Instrument bool
}

// Open connects to the database, optionally instrumented, and verifies the
// connection before returning the handle.
func Open(ctx context.Context, cfg OpenConfig, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var db *sql.DB
	var err error
	if cfg.Instrument {
		db, err = otelsql.Open("mysql", cfg.DSN,
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL)); err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	} else {
		db, err = sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	if cfg.MaxOpen > 0 {
		db.SetMaxOpenConns(cfg.MaxOpen)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	logger.Info("connected to database",
		slog.Bool("instrumented", cfg.Instrument),
		slog.Int("pool_max_open", cfg.MaxOpen),
		slog.Int("pool_max_idle", cfg.MaxIdle),
	)
	return db, nil
}

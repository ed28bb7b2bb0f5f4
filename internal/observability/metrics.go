package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CRUDMetrics holds custom metrics for engine operations.
type CRUDMetrics struct {
	opDuration    metric.Float64Histogram
	opCounter     metric.Int64Counter
	errorCounter  metric.Int64Counter
	denialCounter metric.Int64Counter
	resultsCount  metric.Int64Histogram
}

// InitCRUDMetrics initializes engine operation metrics.
func InitCRUDMetrics() (*CRUDMetrics, error) {
	meter := otel.Meter("modelql")

	opDuration, err := meter.Float64Histogram(
		"crud.operation.duration",
		metric.WithDescription("Duration of CRUD operations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	opCounter, err := meter.Int64Counter(
		"crud.operations.total",
		metric.WithDescription("Total number of CRUD operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"crud.errors.total",
		metric.WithDescription("Total number of failed CRUD operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	denialCounter, err := meter.Int64Counter(
		"crud.authorization.denials",
		metric.WithDescription("Total number of authorization denials"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create denial counter: %w", err)
	}

	resultsCount, err := meter.Int64Histogram(
		"crud.results.count",
		metric.WithDescription("Number of records returned by read operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results count histogram: %w", err)
	}

	return &CRUDMetrics{
		opDuration:    opDuration,
		opCounter:     opCounter,
		errorCounter:  errorCounter,
		denialCounter: denialCounter,
		resultsCount:  resultsCount,
	}, nil
}

// RecordOperation records one operation with its duration and outcome.
func (m *CRUDMetrics) RecordOperation(ctx context.Context, entity, operation string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.Bool("failed", failed),
	}
	m.opDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.opCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if failed {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
		))
	}
}

// RecordDenial records an authorization denial.
func (m *CRUDMetrics) RecordDenial(ctx context.Context, entity, category string) {
	if m == nil {
		return
	}
	m.denialCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("category", category),
	))
}

// RecordResultsCount records the number of records a read returned.
func (m *CRUDMetrics) RecordResultsCount(ctx context.Context, count int64, entity string) {
	if m == nil {
		return
	}
	m.resultsCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("entity", entity),
	))
}

package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const embeddingsInstrumentationName = "github.com/fyrsmithlabs/contentd/internal/embeddings"

// Metrics holds embedding generation metrics.
type Metrics struct {
	meter       metric.Meter
	logger      *zap.Logger
	generateDur metric.Float64Histogram
	batchSize   metric.Int64Histogram
	errorsTotal metric.Int64Counter
}

// NewMetrics creates embedding metrics instruments.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Metrics{
		meter:  otel.Meter(embeddingsInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.generateDur, err = m.meter.Float64Histogram(
		"contentd.embedding.generation_duration_seconds",
		metric.WithDescription("Embedding generation duration in seconds, labeled by model."),
		metric.WithUnit("s"),
	)
	if err != nil {
		m.logger.Warn("failed to create generation duration histogram", zap.Error(err))
	}

	m.batchSize, err = m.meter.Int64Histogram(
		"contentd.embedding.batch_size",
		metric.WithDescription("Number of documents per embedding batch."),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		m.logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.errorsTotal, err = m.meter.Int64Counter(
		"contentd.embedding.errors_total",
		metric.WithDescription("Total embedding generation failures, labeled by model."),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordBatch records one embedding batch.
func (m *Metrics) RecordBatch(ctx context.Context, model string, size int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	if m.generateDur != nil {
		m.generateDur.Record(ctx, duration.Seconds(), attrs)
	}
	if m.batchSize != nil {
		m.batchSize.Record(ctx, int64(size), attrs)
	}
	if err != nil && m.errorsTotal != nil {
		m.errorsTotal.Add(ctx, 1, attrs)
	}
}

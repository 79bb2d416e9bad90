package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/contentd/internal/pipeline"

// Metrics holds pipeline metrics.
type Metrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	tasksSubmitted metric.Int64Counter
	tasksFinished  metric.Int64Counter
	taskDur        metric.Float64Histogram
	stageDur       metric.Float64Histogram
}

// NewMetrics creates a Metrics instance.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.tasksSubmitted, err = m.meter.Int64Counter(
		"contentd.pipeline.tasks_submitted_total",
		metric.WithDescription("Total briefs submitted for processing."),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		m.logger.Warn("failed to create submitted counter", zap.Error(err))
	}

	m.tasksFinished, err = m.meter.Int64Counter(
		"contentd.pipeline.tasks_finished_total",
		metric.WithDescription("Total tasks reaching a terminal status, labeled by outcome (completed, error)."),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		m.logger.Warn("failed to create finished counter", zap.Error(err))
	}

	m.taskDur, err = m.meter.Float64Histogram(
		"contentd.pipeline.task_duration_seconds",
		metric.WithDescription("Wall-clock time from processing start to terminal status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		m.logger.Warn("failed to create task duration histogram", zap.Error(err))
	}

	m.stageDur, err = m.meter.Float64Histogram(
		"contentd.pipeline.stage_duration_seconds",
		metric.WithDescription("External stage call duration, labeled by stage and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		m.logger.Warn("failed to create stage duration histogram", zap.Error(err))
	}
}

// RecordSubmitted records a submitted brief.
func (m *Metrics) RecordSubmitted(ctx context.Context) {
	if m.tasksSubmitted != nil {
		m.tasksSubmitted.Add(ctx, 1)
	}
}

// RecordFinished records a task reaching a terminal status.
func (m *Metrics) RecordFinished(ctx context.Context, completed bool, dur time.Duration) {
	outcome := "completed"
	if !completed {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.tasksFinished != nil {
		m.tasksFinished.Add(ctx, 1, attrs)
	}
	if m.taskDur != nil {
		m.taskDur.Record(ctx, dur.Seconds(), attrs)
	}
}

// RecordStage records one stage execution.
func (m *Metrics) RecordStage(ctx context.Context, stage Stage, dur time.Duration, err error) {
	if m.stageDur == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.stageDur.Record(ctx, dur.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("status", status),
		),
	)
}

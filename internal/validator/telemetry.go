package validator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// InstrumentationName is the name used for OTEL instrumentation.
	InstrumentationName = "github.com/fyrsmithlabs/sketchd/internal/validator"
)

// Metrics records validation outcomes.
type Metrics struct {
	validationsTotal metric.Int64Counter
	issuesTotal      metric.Int64Counter
	score            metric.Float64Histogram

	initialized bool
}

// NewMetrics creates validator metrics. If meter is nil, uses the global
// meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.validationsTotal, err = meter.Int64Counter(
		"sketchd.validator.validations.total",
		metric.WithDescription("Candidates validated, by validity"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, err
	}

	m.issuesTotal, err = meter.Int64Counter(
		"sketchd.validator.issues.total",
		metric.WithDescription("Validation issues raised, by category and severity"),
		metric.WithUnit("{issue}"),
	)
	if err != nil {
		return nil, err
	}

	m.score, err = meter.Float64Histogram(
		"sketchd.validator.score",
		metric.WithDescription("Validation score of candidates"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0, 0.1, 0.4, 0.6, 0.7, 0.8, 0.9, 1.0),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordValidation records a single validation result.
func (m *Metrics) RecordValidation(ctx context.Context, r Result) {
	if m == nil || !m.initialized {
		return
	}
	m.validationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", r.Valid)))
	m.score.Record(ctx, r.Score)
	for _, i := range r.Issues {
		m.issuesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", string(i.Category)),
			attribute.String("severity", string(i.Severity)),
		))
	}
}

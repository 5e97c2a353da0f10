package controller

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName is the name used for OTEL instrumentation.
	InstrumentationName = "github.com/fyrsmithlabs/sketchd/internal/controller"
)

// Metrics provides OpenTelemetry metrics for the controller.
type Metrics struct {
	instructionsTotal metric.Int64Counter
	stagesTotal       metric.Int64Counter
	attemptsTotal     metric.Int64Counter
	repairsTotal      metric.Int64Counter
	fallbacksTotal    metric.Int64Counter
	overrunsTotal     metric.Int64Counter
	committedScore    metric.Float64Histogram

	initialized bool
}

// NewMetrics creates controller metrics. If meter is nil, uses the global
// meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.instructionsTotal, err = meter.Int64Counter(
		"sketchd.controller.instructions.total",
		metric.WithDescription("Instructions processed, by outcome"),
		metric.WithUnit("{instruction}"),
	)
	if err != nil {
		return nil, err
	}

	m.stagesTotal, err = meter.Int64Counter(
		"sketchd.controller.stages.total",
		metric.WithDescription("Stages ended, by terminal state"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return nil, err
	}

	m.attemptsTotal, err = meter.Int64Counter(
		"sketchd.controller.attempts.total",
		metric.WithDescription("Oracle generations, by result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.repairsTotal, err = meter.Int64Counter(
		"sketchd.controller.repairs.total",
		metric.WithDescription("Repair requests sent to the oracle"),
		metric.WithUnit("{repair}"),
	)
	if err != nil {
		return nil, err
	}

	m.fallbacksTotal, err = meter.Int64Counter(
		"sketchd.controller.fallbacks.total",
		metric.WithDescription("Best-of fallbacks committed after the repair budget ran out"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return nil, err
	}

	m.overrunsTotal, err = meter.Int64Counter(
		"sketchd.controller.plan_overruns.total",
		metric.WithDescription("Plan chains cut by max_chain"),
		metric.WithUnit("{chain}"),
	)
	if err != nil {
		return nil, err
	}

	m.committedScore, err = meter.Float64Histogram(
		"sketchd.controller.committed.score",
		metric.WithDescription("Validation score of committed candidates"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0, 0.1, 0.4, 0.6, 0.7, 0.8, 0.9, 1.0),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordInstruction records a finished instruction.
func (m *Metrics) RecordInstruction(ctx context.Context, outcome string) {
	if m == nil || !m.initialized {
		return
	}
	m.instructionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAttempt records one oracle generation.
func (m *Metrics) RecordAttempt(ctx context.Context, result string) {
	if m == nil || !m.initialized {
		return
	}
	m.attemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRepair records a repair request.
func (m *Metrics) RecordRepair(ctx context.Context) {
	if m == nil || !m.initialized {
		return
	}
	m.repairsTotal.Add(ctx, 1)
}

// RecordStage records a stage reaching a terminal state.
func (m *Metrics) RecordStage(ctx context.Context, r StageResult) {
	if m == nil || !m.initialized {
		return
	}
	state := StateAnswered
	if len(r.Trace) > 0 {
		state = r.Trace[len(r.Trace)-1]
	}
	m.stagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(state))))
	if state != StateCommitted {
		return
	}
	m.committedScore.Record(ctx, r.Score)
	if r.Fallback {
		m.fallbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", r.Valid)))
	}
}

// RecordOverrun records a plan chain overrun.
func (m *Metrics) RecordOverrun(ctx context.Context) {
	if m == nil || !m.initialized {
		return
	}
	m.overrunsTotal.Add(ctx, 1)
}

// Tracer returns a tracer for the controller package.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

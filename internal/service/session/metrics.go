package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts lifecycle outcomes. A nil *Metrics records nothing.
type Metrics struct {
	started     metric.Int64Counter
	startFailed metric.Int64Counter
	ended       metric.Int64Counter
	endFailed   metric.Int64Counter
	proofs      metric.Int64Counter
	active      metric.Int64UpDownCounter
}

// NewMetrics registers the session instruments on meter. A nil meter uses
// the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter("murph/session")
	}

	m := &Metrics{}
	var err error
	if m.started, err = meter.Int64Counter("murph.sessions.started",
		metric.WithDescription("Sessions whose reserve was locked")); err != nil {
		return nil, err
	}
	if m.startFailed, err = meter.Int64Counter("murph.sessions.start_failed",
		metric.WithDescription("Session starts rejected by the backend")); err != nil {
		return nil, err
	}
	if m.ended, err = meter.Int64Counter("murph.sessions.ended",
		metric.WithDescription("Sessions settled")); err != nil {
		return nil, err
	}
	if m.endFailed, err = meter.Int64Counter("murph.sessions.end_failed",
		metric.WithDescription("Settlement attempts that failed")); err != nil {
		return nil, err
	}
	if m.proofs, err = meter.Int64Counter("murph.milestones.proofs",
		metric.WithDescription("Milestone proof submissions by outcome")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("murph.sessions.active",
		metric.WithDescription("Sessions currently metering")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) sessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.started.Add(ctx, 1)
	m.active.Add(ctx, 1)
}

func (m *Metrics) sessionStartFailed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.startFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) sessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ended.Add(ctx, 1)
	m.active.Add(ctx, -1)
}

func (m *Metrics) sessionEndFailed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.endFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) proofSubmitted(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.proofs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

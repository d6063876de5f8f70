// Package observe provides OpenTelemetry metrics for the coaching service and
// an HTTP middleware that records request latency.
//
// Metrics are exported through a Prometheus bridge set up by [InitProvider].
// Tests should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ashureev/fluentcoach"

// Metrics holds all metric instruments. Safe for concurrent use.
type Metrics struct {
	// ChallengeTicks counts tick outcomes by status and failure kind.
	ChallengeTicks metric.Int64Counter

	// CoachRequests counts coaching exchanges by outcome
	// ("ok", "fallback", "error").
	CoachRequests metric.Int64Counter

	// CollaboratorDuration tracks external call latency by collaborator.
	CollaboratorDuration metric.Float64Histogram

	// CollaboratorErrors counts failed external calls by collaborator.
	CollaboratorErrors metric.Int64Counter

	// BadgesAwarded counts badges by name.
	BadgesAwarded metric.Int64Counter

	// HTTPRequestDuration tracks request latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChallengeTicks, err = m.Int64Counter("fluentcoach.challenge.ticks",
		metric.WithDescription("Challenge ticks by status and failure kind."),
	); err != nil {
		return nil, err
	}
	if met.CoachRequests, err = m.Int64Counter("fluentcoach.coach.requests",
		metric.WithDescription("Coaching exchanges by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CollaboratorDuration, err = m.Float64Histogram("fluentcoach.collaborator.duration",
		metric.WithDescription("Latency of external collaborator calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CollaboratorErrors, err = m.Int64Counter("fluentcoach.collaborator.errors",
		metric.WithDescription("Failed external collaborator calls."),
	); err != nil {
		return nil, err
	}
	if met.BadgesAwarded, err = m.Int64Counter("fluentcoach.badges.awarded",
		metric.WithDescription("Badges awarded by name."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("fluentcoach.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordChallengeOutcome implements challenge.OutcomeRecorder.
func (m *Metrics) RecordChallengeOutcome(ctx context.Context, status, kind string) {
	m.ChallengeTicks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("kind", kind),
	))
}

// RecordCoach counts a coaching exchange with its outcome.
func (m *Metrics) RecordCoach(ctx context.Context, outcome string) {
	m.CoachRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCollaboratorCall records the latency of an external call and counts
// it as an error when failed is true.
func (m *Metrics) RecordCollaboratorCall(ctx context.Context, collaborator string, seconds float64, failed bool) {
	attrs := metric.WithAttributes(attribute.String("collaborator", collaborator))
	m.CollaboratorDuration.Record(ctx, seconds, attrs)
	if failed {
		m.CollaboratorErrors.Add(ctx, 1, attrs)
	}
}

// RecordBadges counts newly awarded badges.
func (m *Metrics) RecordBadges(ctx context.Context, badges []string) {
	for _, b := range badges {
		m.BadgesAwarded.Add(ctx, 1, metric.WithAttributes(attribute.String("badge", b)))
	}
}

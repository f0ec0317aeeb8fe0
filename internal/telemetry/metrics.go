// Package telemetry exposes counters for gateway operations.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the instruments the gateway records against. All methods are
// safe to call on a Metrics built from a no-op meter.
type Metrics struct {
	stateTransitions  otelmetric.Int64Counter
	reconnectAttempts otelmetric.Int64Counter
	codesIssued       otelmetric.Int64Counter
	codesVerified     otelmetric.Int64Counter
	codesFailed       otelmetric.Int64Counter
	messagesSent      otelmetric.Int64Counter
}

// NewMetrics registers the gateway instruments on the given meter provider.
// Pass nil to get metrics backed by a no-op meter.
func NewMetrics(provider otelmetric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter("wa-gateway")

	m := &Metrics{}
	var err error
	if m.stateTransitions, err = meter.Int64Counter("gateway.session.transitions",
		otelmetric.WithDescription("Session state transitions")); err != nil {
		return nil, err
	}
	if m.reconnectAttempts, err = meter.Int64Counter("gateway.session.reconnect_attempts",
		otelmetric.WithDescription("Reconnect attempts scheduled")); err != nil {
		return nil, err
	}
	if m.codesIssued, err = meter.Int64Counter("gateway.otp.issued",
		otelmetric.WithDescription("Verification codes issued")); err != nil {
		return nil, err
	}
	if m.codesVerified, err = meter.Int64Counter("gateway.otp.verified",
		otelmetric.WithDescription("Verification codes successfully verified")); err != nil {
		return nil, err
	}
	if m.codesFailed, err = meter.Int64Counter("gateway.otp.failed",
		otelmetric.WithDescription("Failed verification attempts")); err != nil {
		return nil, err
	}
	if m.messagesSent, err = meter.Int64Counter("gateway.messages.sent",
		otelmetric.WithDescription("Outbound messages sent")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordTransition(ctx context.Context, sessionID, from, to string) {
	if m == nil {
		return
	}
	m.stateTransitions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *Metrics) RecordReconnect(ctx context.Context, sessionID string, attempt int) {
	if m == nil {
		return
	}
	m.reconnectAttempts.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("attempt", attempt),
	))
}

func (m *Metrics) RecordCodeIssued(ctx context.Context, sessionID string) {
	if m == nil {
		return
	}
	m.codesIssued.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("session_id", sessionID)))
}

func (m *Metrics) RecordCodeVerified(ctx context.Context, sessionID string) {
	if m == nil {
		return
	}
	m.codesVerified.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("session_id", sessionID)))
}

func (m *Metrics) RecordCodeFailed(ctx context.Context, sessionID string) {
	if m == nil {
		return
	}
	m.codesFailed.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("session_id", sessionID)))
}

func (m *Metrics) RecordMessageSent(ctx context.Context, sessionID string) {
	if m == nil {
		return
	}
	m.messagesSent.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("session_id", sessionID)))
}

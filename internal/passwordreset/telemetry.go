package passwordreset

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "naija-nutri-hub/backend/internal/passwordreset"

var tracer = otel.Tracer(instrumentationName)

type metrics struct {
	requests metric.Int64Counter
	confirms metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(instrumentationName)
	requests, err := meter.Int64Counter("password_reset.requests",
		metric.WithDescription("Password reset requests by internal outcome"))
	if err != nil {
		requests = noop.Int64Counter{}
	}
	confirms, err := meter.Int64Counter("password_reset.confirms",
		metric.WithDescription("Password reset confirmations by outcome"))
	if err != nil {
		confirms = noop.Int64Counter{}
	}
	return &metrics{requests: requests, confirms: confirms}
}

func (m *metrics) recordRequest(ctx context.Context, outcome Outcome, err error) {
	o := string(outcome)
	if err != nil {
		o = "error"
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", o)))
}

func (m *metrics) recordConfirm(ctx context.Context, err error) {
	o := "reset"
	switch {
	case errors.Is(err, ErrInvalidOrExpiredToken):
		o = "invalid_token"
	case errors.Is(err, ErrWeakPassword):
		o = "weak_password"
	case err != nil:
		o = "error"
	}
	m.confirms.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", o)))
}

func recordSpan(span trace.Span, outcome string, err error) {
	if outcome == "" {
		outcome = "error"
	}
	span.SetAttributes(attribute.String("password_reset.outcome", outcome))
	if err == nil || errors.Is(err, ErrInvalidOrExpiredToken) || errors.Is(err, ErrWeakPassword) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "password reset failed")
}

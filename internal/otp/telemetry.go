package otp

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"naija-nutri-hub/backend/internal/ratelimit"
)

const instrumentationName = "naija-nutri-hub/backend/internal/otp"

var tracer = otel.Tracer(instrumentationName)

type metrics struct {
	issued   metric.Int64Counter
	verified metric.Int64Counter
}

// newMetrics registers the counters on the global MeterProvider, falling back
// to no-op instruments if registration fails.
func newMetrics() *metrics {
	meter := otel.Meter(instrumentationName)
	issued, err := meter.Int64Counter("otp.issue.requests",
		metric.WithDescription("OTP issue and resend requests by outcome"))
	if err != nil {
		issued = noop.Int64Counter{}
	}
	verified, err := meter.Int64Counter("otp.verify.requests",
		metric.WithDescription("OTP verification attempts by outcome"))
	if err != nil {
		verified = noop.Int64Counter{}
	}
	return &metrics{issued: issued, verified: verified}
}

func (m *metrics) recordIssue(ctx context.Context, kind string, res IssueResult, err error) {
	outcome := string(res.Status)
	switch {
	case errors.Is(err, ratelimit.ErrTooManyRequests):
		outcome = "throttled"
	case err != nil:
		outcome = "error"
	}
	m.issued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (m *metrics) recordVerify(ctx context.Context, err error) {
	m.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", verifyOutcome(err))))
}

// recordSpan tags span with the outcome. Expected business outcomes are not span errors.
func recordSpan(span trace.Span, outcome string, err error) {
	if outcome == "" {
		outcome = "error"
	}
	span.SetAttributes(attribute.String("otp.outcome", outcome))
	if err == nil || isExpected(err) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "otp operation failed")
}

func isExpected(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrIncorrectOTP) ||
		errors.Is(err, ErrOTPExpired) ||
		errors.Is(err, ratelimit.ErrTooManyRequests)
}

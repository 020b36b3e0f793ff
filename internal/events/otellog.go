package events

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// recordEmitter is the subset of otellog.Logger used to emit records.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// LogEmitter sends account events as OTel log records.
type LogEmitter struct {
	logger recordEmitter
}

// NewLogEmitter returns an Emitter backed by the given LoggerProvider.
// If provider is nil, returns Nop.
func NewLogEmitter(provider *sdklog.LoggerProvider) Emitter {
	if provider == nil {
		return Nop{}
	}
	return &LogEmitter{logger: provider.Logger("nutrihub.account")}
}

// Emit converts the event to a log record. Empty fields are not added as attributes.
func (e *LogEmitter) Emit(ctx context.Context, event *AccountEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(string(event.Type)))
	rec.AddAttributes(otellog.String("event_type", string(event.Type)))
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		rec.AddAttributes(otellog.String("email", event.Email))
	}
	for k, v := range event.Attributes {
		rec.AddAttributes(otellog.String(k, v))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"whatsapp-otp-gateway/internal/activity"
	"whatsapp-otp-gateway/internal/activity/domain"
)

// NewActivityEmitter returns an activity.Emitter that sends records as OTel log
// records via the given LoggerProvider. If provider is nil, returns a no-op emitter.
func NewActivityEmitter(provider *sdklog.LoggerProvider) activity.Emitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("wa-gateway.activity")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Record) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the activity record to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, rec *domain.Record) error {
	if rec == nil {
		return nil
	}
	out := otellog.Record{}
	if !rec.CreatedAt.IsZero() {
		out.SetTimestamp(rec.CreatedAt)
	} else {
		out.SetTimestamp(time.Now().UTC())
	}
	if rec.Detail != "" {
		out.SetBody(otellog.StringValue(rec.Detail))
	}
	if rec.SessionID != "" {
		out.AddAttributes(otellog.String("session_id", rec.SessionID))
	}
	if rec.Action != "" {
		out.AddAttributes(otellog.String("action", rec.Action))
	}
	if rec.Status != "" {
		out.AddAttributes(otellog.String("status", rec.Status))
	}
	if rec.PhoneNumber != "" {
		out.AddAttributes(otellog.String("phone_number", rec.PhoneNumber))
	}
	if rec.MessageID != "" {
		out.AddAttributes(otellog.String("message_id", rec.MessageID))
	}
	if rec.ErrorMessage != "" {
		out.AddAttributes(otellog.String("error_message", rec.ErrorMessage))
	}
	e.logger.Emit(ctx, out)
	return nil
}

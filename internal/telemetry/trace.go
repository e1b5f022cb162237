// Package telemetry wraps the OpenTelemetry helpers used by authgate.
package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names.
const (
	TracerWebhook     = "authgate/webhook"
	TracerPermissions = "authgate/permissions"
	TracerServer      = "authgate/server"
)

// Common attribute keys.
const (
	AttrWebhookURL        = "webhook.url"
	AttrWebhookMethod     = "webhook.method"
	AttrWebhookStatusCode = "webhook.status_code"
	AttrSessionRole       = "session.role"
	AttrCommandName       = "command.name"
)

// StartSpan creates a new span.
//
//	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerWebhook, "request_to_webhook",
//	    attribute.String(telemetry.AttrWebhookURL, url),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceHeaders returns the propagation headers of the span carried by ctx,
// using the globally configured propagator.
func TraceHeaders(ctx context.Context) http.Header {
	headers := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
	return headers
}

// UsePropagators installs the W3C trace-context and baggage propagators globally.
func UsePropagators() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

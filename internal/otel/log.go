package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// TraceContextFrom returns the trace and span ids of the span in ctx, or two
// empty strings when ctx carries no valid span (tracing disabled).
func TraceContextFrom(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// LogTraceFields adds trace_id and span_id to an event when ctx holds a span:
//
//	log.Warn().Err(err).Func(otel.LogTraceFields(ctx)).Msg("ai_response_unparseable")
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		if traceID, spanID := TraceContextFrom(ctx); traceID != "" {
			e.Str("trace_id", traceID).Str("span_id", spanID)
		}
	}
}

// ScopeLogger derives a logger from base that stamps every event with the
// alias scope and, when present, the active trace.
func ScopeLogger(ctx context.Context, base zerolog.Logger, scopeID string) zerolog.Logger {
	c := base.With().Str("scope_id", scopeID)
	if traceID, spanID := TraceContextFrom(ctx); traceID != "" {
		c = c.Str("trace_id", traceID).Str("span_id", spanID)
	}
	return c.Logger()
}

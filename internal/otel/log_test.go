package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextFrom_NoSpan(t *testing.T) {
	traceID, spanID := TraceContextFrom(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestLogTraceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger.Info().Func(LogTraceFields(context.Background())).Msg("no_span")
	assert.NotContains(t, buf.String(), "trace_id")

	buf.Reset()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	logger.Info().Func(LogTraceFields(ctx)).Msg("with_span")
	assert.Contains(t, buf.String(), `"trace_id":"01020300000000000000000000000000"`)
	assert.Contains(t, buf.String(), `"span_id":"0405060000000000"`)
}

func TestScopeLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := ScopeLogger(context.Background(), base, "case-7")
	logger.Info().Msg("scope_cleared")
	assert.Contains(t, buf.String(), `"scope_id":"case-7"`)
	assert.NotContains(t, buf.String(), "trace_id")

	buf.Reset()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{9},
		SpanID:  trace.SpanID{8},
	})
	logger = ScopeLogger(trace.ContextWithSpanContext(context.Background(), sc), base, "case-7")
	logger.Warn().Msg("ai_detection_degraded")
	assert.Contains(t, buf.String(), `"scope_id":"case-7"`)
	assert.Contains(t, buf.String(), `"trace_id":"09000000000000000000000000000000"`)
	assert.Contains(t, buf.String(), `"span_id":"0800000000000000"`)
}

package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func resetProviders(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup("masquerade", "dev", false, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_ExportsSpansToWriter(t *testing.T) {
	resetProviders(t)
	var buf bytes.Buffer
	shutdown, err := Setup("masquerade-test", "0.0.1", true, &buf)
	require.NoError(t, err)

	_, span := Tracer("github.com/dativo-io/masquerade/internal/otel/test").Start(context.Background(), "test.operation")
	assert.True(t, span.SpanContext().IsValid(), "span context should be valid after Setup()")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "test.operation")
}

func TestTracer_ReturnsNonNilTracer(t *testing.T) {
	assert.NotNil(t, Tracer("github.com/dativo-io/masquerade/internal/test"))
}

package redact

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/dativo-io/masquerade/internal/redact")

var (
	redactionsTotal metric.Int64Counter
	degradedTotal   metric.Int64Counter
)

func init() {
	var err error
	redactionsTotal, err = meter.Int64Counter("redact.replacements.total",
		metric.WithDescription("Entity occurrences replaced with aliases"))
	if err != nil {
		redactionsTotal, _ = meter.Int64Counter("redact.replacements.total.fallback")
	}
	degradedTotal, err = meter.Int64Counter("redact.degraded.total",
		metric.WithDescription("Redactions that fell back to pattern-only detection"))
	if err != nil {
		degradedTotal, _ = meter.Int64Counter("redact.degraded.total.fallback")
	}
}

func recordRedaction(ctx context.Context, res *Result) {
	attrs := metric.WithAttributes(attribute.String("content_type", string(res.ContentType)))
	redactionsTotal.Add(ctx, int64(res.RedactionCount), attrs)
	if res.Degraded {
		degradedTotal.Add(ctx, 1, attrs)
	}
}

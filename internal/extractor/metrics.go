package extractor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/dativo-io/masquerade/internal/extractor")

var unavailableTotal metric.Int64Counter

func init() {
	var err error
	unavailableTotal, err = meter.Int64Counter("extractor.unavailable.total",
		metric.WithDescription("AI extraction calls that could not run"))
	if err != nil {
		unavailableTotal, _ = meter.Int64Counter("extractor.unavailable.total.fallback")
	}
}

func recordUnavailable(ctx context.Context, reason string) {
	unavailableTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

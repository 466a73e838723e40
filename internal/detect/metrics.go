package detect

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/dativo-io/masquerade/internal/detect")

var falsePositivesTotal metric.Int64Counter

func init() {
	var err error
	falsePositivesTotal, err = meter.Int64Counter("detect.false_positives.total",
		metric.WithDescription("Findings rejected by validation"))
	if err != nil {
		falsePositivesTotal, _ = meter.Int64Counter("detect.false_positives.total.fallback")
	}
}

func recordFalsePositives(ctx context.Context, n int) {
	falsePositivesTotal.Add(ctx, int64(n))
}

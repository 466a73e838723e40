package classifier

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dativo-io/masquerade/internal/entity"
)

var meter = otel.Meter("github.com/dativo-io/masquerade/internal/classifier")

var findingsTotal metric.Int64Counter

func init() {
	var err error
	findingsTotal, err = meter.Int64Counter("classifier.findings.total",
		metric.WithDescription("Findings produced by pattern recognizers"))
	if err != nil {
		findingsTotal, _ = meter.Int64Counter("classifier.findings.total.fallback")
	}
}

func recordFindings(ctx context.Context, source entity.Source, n int) {
	if n == 0 {
		return
	}
	findingsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("source", string(source))))
}

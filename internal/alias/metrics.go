package alias

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/dativo-io/masquerade/internal/alias")

var (
	resolutionsTotal metric.Int64Counter
	aliasesCreated   metric.Int64Counter
)

func init() {
	var err error
	resolutionsTotal, err = meter.Int64Counter("alias.resolutions.total",
		metric.WithDescription("Alias resolutions, including reuse of existing mappings"))
	if err != nil {
		resolutionsTotal, _ = meter.Int64Counter("alias.resolutions.total.fallback")
	}
	aliasesCreated, err = meter.Int64Counter("alias.created.total",
		metric.WithDescription("New alias mappings created"))
	if err != nil {
		aliasesCreated, _ = meter.Int64Counter("alias.created.total.fallback")
	}
}

func recordResolutions(ctx context.Context, resolved, created int) {
	resolutionsTotal.Add(ctx, int64(resolved))
	if created > 0 {
		aliasesCreated.Add(ctx, int64(created))
	}
}

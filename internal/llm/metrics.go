package llm

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dativo-io/masquerade/internal/llm"

var (
	requestDuration   metric.Float64Histogram
	metricsOnce       sync.Once
	metricsRegistered bool
)

func initMetrics() {
	meter := otel.Meter(meterName)
	var err error
	requestDuration, err = meter.Float64Histogram(
		"masquerade.llm.request.duration",
		metric.WithDescription("Latency of LLM extraction requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

// recordRequest records latency per provider call, tagged with the outcome.
func recordRequest(ctx context.Context, provider, model string, elapsed time.Duration, err error) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	requestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("error", err != nil),
	))
}

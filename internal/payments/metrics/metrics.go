package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	webhooksTotal   metric.Int64Counter
	verifiesTotal   metric.Int64Counter
	gatewayDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.webhooksTotal, err = meter.Int64Counter(
		"payments_webhooks_total",
		metric.WithDescription("Total webhook deliveries by outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payments_webhooks_total counter: %w", err)
	}

	m.verifiesTotal, err = meter.Int64Counter(
		"payments_verifies_total",
		metric.WithDescription("Total verify requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payments_verifies_total counter: %w", err)
	}

	m.gatewayDuration, err = meter.Float64Histogram(
		"gateway_verify_duration_seconds",
		metric.WithDescription("Duration of outbound gateway verify calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create gateway_verify_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordWebhook(ctx context.Context, outcome string) {
	m.webhooksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordVerify(ctx context.Context, outcome string) {
	m.verifiesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordGatewayCall(ctx context.Context, durationSeconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.gatewayDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("status", status),
	))
}

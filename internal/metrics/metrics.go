// Package metrics records limiter decisions through OpenTelemetry.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/and161185/riskguard/internal/metrics"

// Recorder receives one call per policy decision.
type Recorder interface {
	Decision(ctx context.Context, check, outcome string)
}

// Nop discards every decision.
type Nop struct{}

// Decision implements Recorder.
func (Nop) Decision(context.Context, string, string) {}

// OTel counts decisions on an OpenTelemetry Int64Counter.
type OTel struct {
	decisions metric.Int64Counter
}

// NewOTel registers the decision counter on m, or on the global meter provider when m is nil.
// Registration failures are logged and yield a recorder that drops data.
func NewOTel(m metric.Meter, log *zap.Logger) Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = otel.GetMeterProvider().Meter(meterName)
	}
	counter, err := m.Int64Counter(
		"riskguard.limiter.decisions",
		metric.WithDescription("Rate limiter decisions by check and outcome"),
	)
	if err != nil {
		log.Warn("metrics: unable to register decision counter", zap.Error(err))
		return Nop{}
	}
	return &OTel{decisions: counter}
}

// Decision implements Recorder.
func (o *OTel) Decision(ctx context.Context, check, outcome string) {
	o.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

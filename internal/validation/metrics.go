package validation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "github.com/example/ticket-shotgun/internal/validation"

type metrics struct {
	runs       metric.Int64Counter
	violations metric.Int64Counter
	enabled    bool
}

func newMetrics(meter metric.Meter, logger *zap.Logger) metrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	runs, runsErr := meter.Int64Counter(
		"validation.runs",
		metric.WithDescription("Count of order validations by outcome"),
	)
	violations, violationsErr := meter.Int64Counter(
		"validation.violations",
		metric.WithDescription("Count of rule violations by code"),
	)
	if runsErr != nil || violationsErr != nil {
		logger.Warn("validation: unable to register metrics", zap.Errors("errors", []error{runsErr, violationsErr}))
		return metrics{}
	}
	return metrics{runs: runs, violations: violations, enabled: true}
}

func (m metrics) record(ctx context.Context, r Result) {
	if !m.enabled {
		return
	}
	outcome := "valid"
	if !r.IsValid {
		outcome = "invalid"
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	for _, v := range r.Errors {
		m.violations.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(v.Code))))
	}
}

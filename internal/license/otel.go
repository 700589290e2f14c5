package license

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the license activation OpenTelemetry instruments
type Metrics struct {
	ActivationAttempts metric.Int64Counter
	ActivationSuccess  metric.Int64Counter
	ActivationFailures metric.Int64Counter
	ActivationDuration metric.Float64Histogram
}

// newMetrics creates the activation instruments on the given meter
func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ActivationAttempts, err = meter.Int64Counter(
		"license.activation.attempts",
		metric.WithDescription("Total license activation attempts"),
	); err != nil {
		return nil, err
	}

	if m.ActivationSuccess, err = meter.Int64Counter(
		"license.activation.success",
		metric.WithDescription("Successful license activations"),
	); err != nil {
		return nil, err
	}

	if m.ActivationFailures, err = meter.Int64Counter(
		"license.activation.failures",
		metric.WithDescription("Failed license activation attempts"),
	); err != nil {
		return nil, err
	}

	if m.ActivationDuration, err = meter.Float64Histogram(
		"license.activation.duration",
		metric.WithDescription("License activation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

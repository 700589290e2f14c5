package link

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the link handshake OpenTelemetry instruments
type Metrics struct {
	StartAttempts metric.Int64Counter
	StartSuccess  metric.Int64Counter
	StartFailures metric.Int64Counter
	StartDuration metric.Float64Histogram
}

// newMetrics creates the link-start instruments on the given meter
func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.StartAttempts, err = meter.Int64Counter(
		"link.start.attempts",
		metric.WithDescription("Total link handshake start attempts"),
	); err != nil {
		return nil, err
	}

	if m.StartSuccess, err = meter.Int64Counter(
		"link.start.success",
		metric.WithDescription("Successful link handshake starts"),
	); err != nil {
		return nil, err
	}

	if m.StartFailures, err = meter.Int64Counter(
		"link.start.failures",
		metric.WithDescription("Failed link handshake starts"),
	); err != nil {
		return nil, err
	}

	if m.StartDuration, err = meter.Float64Histogram(
		"link.start.duration",
		metric.WithDescription("Link handshake start duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

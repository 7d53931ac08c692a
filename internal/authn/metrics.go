package authn

import "time"

// MetricsSink receives credential-exchange and token-verification
// outcomes. A Prometheus-backed collector satisfies this interface
// structurally; tests can pass nil, which falls back to NoopMetricsSink.
type MetricsSink interface {
	RecordAuthExchange(outcome string, duration time.Duration)
	RecordTokenValidation(status string)
	RecordTokenValidationError(errorType string)
}

type noopMetricsSink struct{}

func (noopMetricsSink) RecordAuthExchange(string, time.Duration) {}
func (noopMetricsSink) RecordTokenValidation(string)              {}
func (noopMetricsSink) RecordTokenValidationError(string)         {}

// NoopMetricsSink is the default sink used when the caller supplies none.
var NoopMetricsSink MetricsSink = noopMetricsSink{}

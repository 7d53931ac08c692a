package logging

// MetricsSink receives record publish outcomes. A Prometheus-backed
// collector satisfies this interface structurally; tests can pass nil,
// which falls back to NoopMetricsSink.
type MetricsSink interface {
	RecordLogPublished(status string)
	RecordLogBusBufferFull()
	RecordLogValidationFailure()
}

type noopMetricsSink struct{}

func (noopMetricsSink) RecordLogPublished(string)   {}
func (noopMetricsSink) RecordLogBusBufferFull()     {}
func (noopMetricsSink) RecordLogValidationFailure() {}

// NoopMetricsSink is the default sink used when the caller supplies none.
var NoopMetricsSink MetricsSink = noopMetricsSink{}

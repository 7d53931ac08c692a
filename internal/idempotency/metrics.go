package idempotency

import "time"

// MetricsSink receives store and engine outcome observations. A
// Prometheus-backed collector satisfies this interface structurally, so
// the transport layer can hand its *observability.MetricsCollector
// straight to NewEngine/NewRedisStore without an adapter; tests can pass
// nil, which falls back to NoopMetricsSink.
type MetricsSink interface {
	RecordCacheOperation(operation string, hit bool, duration time.Duration)
	RecordIdempotencyStoreError(operation string)
	RecordIdempotencyOutcome(outcome string)
}

type noopMetricsSink struct{}

func (noopMetricsSink) RecordCacheOperation(string, bool, time.Duration) {}
func (noopMetricsSink) RecordIdempotencyStoreError(string)               {}
func (noopMetricsSink) RecordIdempotencyOutcome(string)                  {}

// NoopMetricsSink is the default sink used when the caller supplies none.
var NoopMetricsSink MetricsSink = noopMetricsSink{}

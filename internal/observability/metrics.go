package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds all Prometheus metrics for the external processor.
type MetricsCollector struct {
	// gRPC stream metrics
	GRPCStreamsTotal   *prometheus.CounterVec
	GRPCStreamDuration *prometheus.HistogramVec
	GRPCActiveStreams  prometheus.Gauge

	// Phase dispatcher metrics
	PhaseMessagesTotal      *prometheus.CounterVec
	PhaseHandlerDuration    *prometheus.HistogramVec
	PhaseHandlerPanics      *prometheus.CounterVec
	ImmediateResponsesTotal *prometheus.CounterVec

	// Idempotency engine metrics
	IdempotencyHitsTotal     *prometheus.CounterVec
	IdempotencyStoreErrors   *prometheus.CounterVec
	IdempotencySentinelWaits prometheus.Counter

	// Auth engine metrics
	AuthExchangesTotal      *prometheus.CounterVec
	AuthExchangeDuration    prometheus.Histogram
	TokenValidationTotal    *prometheus.CounterVec
	TokenValidationErrors   *prometheus.CounterVec

	// Digest engine metrics
	DigestComputationsTotal prometheus.Counter

	// Log engine / message bus metrics
	LogRecordsPublishedTotal *prometheus.CounterVec
	LogBusBufferFullTotal    prometheus.Counter
	LogValidationFailures    prometheus.Counter

	// Concurrency-test engine metrics
	ConcurrencyViolationsTotal prometheus.Counter
	ConcurrencyProbesTotal     *prometheus.CounterVec

	// Cache metrics (Redis idempotency store)
	CacheHitsTotal         *prometheus.CounterVec
	CacheMissesTotal       *prometheus.CounterVec
	CacheOperationDuration *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates and registers all Prometheus metrics.
func NewMetricsCollector(namespace, subsystem string) *MetricsCollector {
	mc := &MetricsCollector{
		GRPCStreamsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_streams_total",
				Help:      "Total number of Process streams opened",
			},
			[]string{"status"},
		),

		GRPCStreamDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_stream_duration_seconds",
				Help:      "Duration of a full Process stream in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),

		GRPCActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_active_streams",
				Help:      "Number of currently open Process streams",
			},
		),

		PhaseMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "phase_messages_total",
				Help:      "Total number of ProcessingRequest messages handled, by phase",
			},
			[]string{"phase", "response_type"},
		),

		PhaseHandlerDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "phase_handler_duration_seconds",
				Help:      "Time spent inside a single phase handler, by phase",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"phase"},
		),

		PhaseHandlerPanics: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "phase_handler_panics_total",
				Help:      "Total number of recovered phase handler panics, by phase",
			},
			[]string{"phase"},
		),

		ImmediateResponsesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "immediate_responses_total",
				Help:      "Total number of Immediate responses returned, by status",
			},
			[]string{"status", "phase"},
		),

		IdempotencyHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "idempotency_hits_total",
				Help:      "Total number of idempotency cache outcomes",
			},
			[]string{"outcome"}, // miss, cached, in_flight
		),

		IdempotencyStoreErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "idempotency_store_errors_total",
				Help:      "Total number of idempotency store errors, by operation",
			},
			[]string{"operation"},
		),

		IdempotencySentinelWaits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "idempotency_sentinel_waits_total",
				Help:      "Total number of requests that observed an in-flight sentinel",
			},
		),

		AuthExchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "auth_exchanges_total",
				Help:      "Total number of out-of-band credential exchanges, by outcome",
			},
			[]string{"outcome"},
		),

		AuthExchangeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "auth_exchange_duration_seconds",
				Help:      "Duration of the out-of-band token exchange call",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),

		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "token_validation_total",
				Help:      "Total number of JWT validation operations",
			},
			[]string{"status"},
		),

		TokenValidationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "token_validation_errors_total",
				Help:      "Total number of JWT validation errors, by reason",
			},
			[]string{"error_type"},
		),

		DigestComputationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "digest_computations_total",
				Help:      "Total number of rolling digest updates applied",
			},
		),

		LogRecordsPublishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "log_records_published_total",
				Help:      "Total number of log records published to the message bus",
			},
			[]string{"status"},
		),

		LogBusBufferFullTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "log_bus_buffer_full_total",
				Help:      "Total number of times the message bus producer buffer was full",
			},
		),

		LogValidationFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "log_validation_failures_total",
				Help:      "Total number of log records dropped for failing schema validation",
			},
		),

		ConcurrencyViolationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "concurrency_violations_total",
				Help:      "Total number of detected concurrency invariant violations",
			},
		),

		ConcurrencyProbesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "concurrency_probes_total",
				Help:      "Total number of concurrency probes executed, by result",
			},
			[]string{"result"},
		),

		CacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of Redis cache hits",
			},
			[]string{"operation"},
		),

		CacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of Redis cache misses",
			},
			[]string{"operation"},
		),

		CacheOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_operation_duration_seconds",
				Help:      "Redis operation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
			},
			[]string{"operation"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors, by type and component",
			},
			[]string{"error_type", "component"},
		),

		PanicsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "panics_total",
				Help:      "Total number of panics recovered, by component",
			},
			[]string{"component"},
		),
	}

	return mc
}

// RecordGRPCStream records the outcome and duration of a completed stream.
func (mc *MetricsCollector) RecordGRPCStream(status string, duration time.Duration) {
	mc.GRPCStreamsTotal.WithLabelValues(status).Inc()
	mc.GRPCStreamDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPhaseMessage records a single processed phase message.
func (mc *MetricsCollector) RecordPhaseMessage(phase, responseType string, duration time.Duration) {
	mc.PhaseMessagesTotal.WithLabelValues(phase, responseType).Inc()
	mc.PhaseHandlerDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordPhaseHandlerPanic records a recovered panic inside a phase handler.
func (mc *MetricsCollector) RecordPhaseHandlerPanic(phase string) {
	mc.PhaseHandlerPanics.WithLabelValues(phase).Inc()
}

// RecordImmediateResponse records an Immediate response returned to Envoy.
func (mc *MetricsCollector) RecordImmediateResponse(status, phase string) {
	mc.ImmediateResponsesTotal.WithLabelValues(status, phase).Inc()
}

// RecordIdempotencyOutcome records the result of an idempotency cache lookup.
func (mc *MetricsCollector) RecordIdempotencyOutcome(outcome string) {
	mc.IdempotencyHitsTotal.WithLabelValues(outcome).Inc()
	if outcome == "in_flight" {
		mc.IdempotencySentinelWaits.Inc()
	}
}

// RecordIdempotencyStoreError records a store failure for a given operation.
func (mc *MetricsCollector) RecordIdempotencyStoreError(operation string) {
	mc.IdempotencyStoreErrors.WithLabelValues(operation).Inc()
}

// RecordAuthExchange records an out-of-band credential exchange outcome.
func (mc *MetricsCollector) RecordAuthExchange(outcome string, duration time.Duration) {
	mc.AuthExchangesTotal.WithLabelValues(outcome).Inc()
	mc.AuthExchangeDuration.Observe(duration.Seconds())
}

// RecordTokenValidation records a JWT validation outcome.
func (mc *MetricsCollector) RecordTokenValidation(status string) {
	mc.TokenValidationTotal.WithLabelValues(status).Inc()
}

// RecordTokenValidationError records a JWT validation failure reason.
func (mc *MetricsCollector) RecordTokenValidationError(errorType string) {
	mc.TokenValidationErrors.WithLabelValues(errorType).Inc()
}

// RecordDigestComputation records a single rolling digest update.
func (mc *MetricsCollector) RecordDigestComputation() {
	mc.DigestComputationsTotal.Inc()
}

// RecordLogPublished records a log record publish outcome.
func (mc *MetricsCollector) RecordLogPublished(status string) {
	mc.LogRecordsPublishedTotal.WithLabelValues(status).Inc()
}

// RecordLogBusBufferFull records a message bus producer buffer-full event.
func (mc *MetricsCollector) RecordLogBusBufferFull() {
	mc.LogBusBufferFullTotal.Inc()
}

// RecordLogValidationFailure records a log record dropped by schema validation.
func (mc *MetricsCollector) RecordLogValidationFailure() {
	mc.LogValidationFailures.Inc()
}

// RecordConcurrencyViolation records a detected concurrency invariant violation.
func (mc *MetricsCollector) RecordConcurrencyViolation() {
	mc.ConcurrencyViolationsTotal.Inc()
}

// RecordConcurrencyProbe records a concurrency probe execution result.
func (mc *MetricsCollector) RecordConcurrencyProbe(result string) {
	mc.ConcurrencyProbesTotal.WithLabelValues(result).Inc()
}

// RecordCacheOperation records a Redis cache operation outcome and latency.
func (mc *MetricsCollector) RecordCacheOperation(operation string, hit bool, duration time.Duration) {
	mc.CacheOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())

	if hit {
		mc.CacheHitsTotal.WithLabelValues(operation).Inc()
	} else {
		mc.CacheMissesTotal.WithLabelValues(operation).Inc()
	}
}

// RecordError records a generic error, by type and originating component.
func (mc *MetricsCollector) RecordError(errorType, component string) {
	mc.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic records a recovered panic, by originating component.
func (mc *MetricsCollector) RecordPanic(component string) {
	mc.PanicsTotal.WithLabelValues(component).Inc()
}

// IncrementActiveStreams increments the active stream gauge.
func (mc *MetricsCollector) IncrementActiveStreams() {
	mc.GRPCActiveStreams.Inc()
}

// DecrementActiveStreams decrements the active stream gauge.
func (mc *MetricsCollector) DecrementActiveStreams() {
	mc.GRPCActiveStreams.Dec()
}

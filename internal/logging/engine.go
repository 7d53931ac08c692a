package logging

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pandora-labs/extproc-gateway/internal/observability"
)

// Engine builds a Record across the four HTTP phases and publishes it once,
// at response-body completion, to the durable bus topic. Publication never
// fails the request: every error (schema validation, producer backpressure)
// is logged and the record is dropped.
type Engine struct {
	Producer Producer
	Topic    string
	Logger   *observability.Logger
	metrics  MetricsSink
}

// NewEngine builds a log engine publishing to topic via producer. metrics
// may be nil.
func NewEngine(producer Producer, topic string, logger *observability.Logger, metrics MetricsSink) *Engine {
	if metrics == nil {
		metrics = NoopMetricsSink
	}
	return &Engine{Producer: producer, Topic: topic, Logger: logger, metrics: metrics}
}

// validate applies the record schema: the fields every downstream consumer
// of the log topic depends on must be present. A record failing this check
// is logged and dropped rather than published malformed.
func validate(rec *Record) error {
	if rec.Exchange.Method == "" {
		return fmt.Errorf("logging: record missing method")
	}
	if rec.Exchange.Path == "" {
		return fmt.Errorf("logging: record missing path")
	}
	return nil
}

// Publish validates and serializes rec, then hands it to the producer under
// a uniformly random partition key. Any failure — schema validation or
// publish — is logged and swallowed; it never surfaces to the client.
func (e *Engine) Publish(rec *Record) {
	if err := validate(rec); err != nil {
		e.metrics.RecordLogValidationFailure()
		e.log().WithError(err).Error("log record failed schema validation")
		return
	}

	value, err := json.Marshal(rec)
	if err != nil {
		e.metrics.RecordLogPublished("error")
		e.log().WithError(err).Error("log record failed to serialize")
		return
	}

	key := RandomPartitionKey()
	if err := e.Producer.Produce(e.Topic, key, value); err != nil {
		if errors.Is(err, ErrBufferFull) {
			e.metrics.RecordLogBusBufferFull()
		}
		e.metrics.RecordLogPublished("error")
		e.log().WithError(err).Error("log record failed to publish")
		return
	}

	e.metrics.RecordLogPublished("success")
}

func (e *Engine) log() *observability.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return observability.NewLogger("prod", "extproc-gateway")
}

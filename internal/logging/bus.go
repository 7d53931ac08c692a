package logging

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// ErrBufferFull is returned by Produce when the producer's input channel is
// still full after one drain-and-retry, so the engine can distinguish
// backpressure drops from other publish failures when recording metrics.
var ErrBufferFull = errors.New("logging: producer buffer full after flush retry")

// Producer publishes one key/value pair to the durable log topic. The log
// engine never treats a Producer failure as request-fatal: every error is
// logged and dropped at the call site in engine.go.
type Producer interface {
	Produce(topic string, partitionKey, value []byte) error
	Close() error
}

// SaramaProducer is the production Producer, backed by a sarama
// AsyncProducer. Delivery results (successes, failures, and results drained
// to make room in a full buffer) are logged through zap rather than the
// zerolog-based request logger; nothing else is logged here. This mirrors
// the teacher's split between a request-scoped structured logger and a
// dedicated infrastructure-component logger for its message-bus publisher.
type SaramaProducer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	done     chan struct{}
}

// NewSaramaProducer wires an AsyncProducer over brokers and starts the
// background goroutine that drains delivery results, the sarama equivalent
// of polling for delivery callbacks.
func NewSaramaProducer(brokers []string, logger *zap.Logger) (*SaramaProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("logging: new sarama producer: %w", err)
	}

	p := &SaramaProducer{producer: producer, logger: logger, done: make(chan struct{})}
	go p.drainDeliveryResults()
	return p, nil
}

func (p *SaramaProducer) drainDeliveryResults() {
	for {
		select {
		case <-p.done:
			return
		case success, ok := <-p.producer.Successes():
			if !ok {
				return
			}
			p.logger.Debug("log record delivered",
				zap.String("topic", success.Topic),
				zap.Int32("partition", success.Partition),
				zap.Int64("offset", success.Offset))
		case fail, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			p.logger.Error("log record delivery failed",
				zap.String("topic", fail.Msg.Topic),
				zap.Error(fail.Err))
		}
	}
}

// Produce enqueues key/value on topic. If the producer's input channel is
// full it takes at most one delivery result that is already pending,
// without waiting for one, and retries the enqueue once; if the channel is
// still full it returns ErrBufferFull. It never blocks and does not wait
// for in-flight messages to be delivered.
func (p *SaramaProducer) Produce(topic string, partitionKey, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(partitionKey),
		Value: sarama.ByteEncoder(value),
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	default:
	}

	select {
	case success := <-p.producer.Successes():
		p.logger.Debug("flushed pending delivery to make room", zap.String("topic", success.Topic))
	case fail := <-p.producer.Errors():
		p.logger.Warn("flushed pending failed delivery to make room", zap.Error(fail.Err))
	default:
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close shuts the producer down, draining its result channels first.
func (p *SaramaProducer) Close() error {
	close(p.done)
	return p.producer.Close()
}

// RandomPartitionKey picks a uniform byte in [0, 255], the partitioning
// scheme the log engine uses for every published record.
func RandomPartitionKey() []byte {
	return []byte{byte(rand.Intn(256))}
}

package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestSaramaProducer_Integration exercises NewSaramaProducer against a real
// broker. These tests are skipped unless KAFKA_INTEGRATION_TESTS=true and
// KAFKA_BROKERS points at a reachable cluster, since sarama's AsyncProducer
// has no in-process fake suitable for the delivery-result goroutine exercised
// here.
func TestSaramaProducer_Integration(t *testing.T) {
	if os.Getenv("KAFKA_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping Kafka integration tests. Set KAFKA_INTEGRATION_TESTS=true to run")
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	require.NotEmpty(t, brokers, "KAFKA_BROKERS must be set for integration tests")

	logger := zap.NewNop()
	producer, err := NewSaramaProducer([]string{brokers}, logger)
	require.NoError(t, err)
	defer producer.Close()

	err = producer.Produce("extproc-test-topic", RandomPartitionKey(), []byte(`{"hello":"world"}`))
	require.NoError(t, err)
}

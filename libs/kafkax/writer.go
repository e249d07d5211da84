package kafkax

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer that routes each message to its own Topic field.
// Messages with the same key land on the same partition.
func NewWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(brokers)...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewReader returns a consumer-group reader for a single topic.
func NewReader(brokers, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  SplitBrokers(brokers),
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

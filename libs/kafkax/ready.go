package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck passes once any configured broker accepts a connection and, when
// topics are given, reports partitions for every one of them.
func ReadyCheck(brokers string, topics ...string) func(context.Context) error {
	list := SplitBrokers(brokers)
	return func(ctx context.Context) error {
		if len(list) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		var errs []error
		for _, addr := range list {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", addr, err))
				continue
			}
			err = checkTopics(conn, topics)
			_ = conn.Close()
			return err
		}
		return errors.Join(errs...)
	}
}

func checkTopics(conn *kafka.Conn, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	parts, err := conn.ReadPartitions(topics...)
	if err != nil {
		return fmt.Errorf("read partitions: %w", err)
	}
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		seen[p.Topic] = true
	}
	var missing []error
	for _, t := range topics {
		if !seen[t] {
			missing = append(missing, fmt.Errorf("topic %s not found", t))
		}
	}
	return errors.Join(missing...)
}

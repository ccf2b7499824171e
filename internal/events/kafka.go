package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisherConfig contains the settings for the event stream bridge.
type KafkaPublisherConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the topic every event is produced to.
	Topic string
	// MaxAttempts is the number of delivery attempts per event.
	MaxAttempts int
	// WriteTimeout bounds a single produce call.
	WriteTimeout time.Duration
}

// KafkaPublisher forwards dispatched events to a Kafka topic, keyed by
// ticket id so events for one ticket stay in partition order. Register
// its Handle method via Dispatcher.SubscribeAll.
type KafkaPublisher struct {
	writer      *kafka.Writer
	maxAttempts int
}

// NewKafkaPublisher validates the config and builds the producer.
func NewKafkaPublisher(cfg KafkaPublisherConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher: topic is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &KafkaPublisher{writer: writer, maxAttempts: cfg.MaxAttempts}, nil
}

// Handle produces one event, retrying with capped exponential backoff.
func (p *KafkaPublisher) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TicketID),
		Value: value,
		Time:  event.Timestamp,
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		writeErr := p.writer.WriteMessages(ctx, msg)
		if writeErr == nil {
			return nil
		}
		lastErr = writeErr
		if attempt < p.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 2*time.Second {
				backoff *= 2
			}
		}
	}
	return fmt.Errorf("produce event %s after %d attempts: %w", event.ID, p.maxAttempts, lastErr)
}

// Close shuts down the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

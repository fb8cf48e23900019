package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"standings/pkg/logger"
)

// Message is a change message fetched from the results topic
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time
	raw       kafka.Message
}

// Consumer defines the interface for consuming result changes
type Consumer interface {
	// Consume returns a channel of messages. Offsets are not committed until
	// Commit is called.
	Consume(ctx context.Context) (<-chan Message, <-chan error)

	// Commit marks the messages as processed
	Commit(ctx context.Context, msgs ...Message) error

	// Close gracefully shuts down the consumer
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements the Consumer interface using a kafka-go group reader
type KafkaConsumer struct {
	reader messageReader
}

// Config holds Kafka consumer configuration
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// ErrorLogger receives the reader's internal errors when set
	ErrorLogger *logger.Logger
}

// NewKafkaConsumer creates a new KafkaConsumer instance
func NewKafkaConsumer(cfg Config) *KafkaConsumer {
	readerCfg := kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	}
	if cfg.ErrorLogger != nil {
		readerCfg.ErrorLogger = kafka.LoggerFunc(cfg.ErrorLogger.Zap().Sugar().Errorf)
	}
	reader := kafka.NewReader(readerCfg)

	return &KafkaConsumer{
		reader: reader,
	}
}

// Consume starts the consumption loop
func (c *KafkaConsumer) Consume(ctx context.Context) (<-chan Message, <-chan error) {
	msgChan := make(chan Message)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)

		for {
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errChan <- fmt.Errorf("failed to fetch message: %w", err)
				return
			}

			select {
			case msgChan <- Message{
				Key:       m.Key,
				Value:     m.Value,
				Partition: m.Partition,
				Offset:    m.Offset,
				Time:      m.Time,
				raw:       m,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgChan, errChan
}

// Commit commits the offsets of the messages
func (c *KafkaConsumer) Commit(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	raw := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		raw[i] = m.raw
	}
	if err := c.reader.CommitMessages(ctx, raw...); err != nil {
		return fmt.Errorf("failed to commit %d messages: %w", len(msgs), err)
	}
	return nil
}

// Close gracefully shuts down the consumer
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"standings/pkg/changestream"
	"standings/pkg/logger"
)

// ProduceResult holds the result of an asynchronous production
type ProduceResult struct {
	Error error
}

// Producer defines the interface for publishing result changes
type Producer interface {
	// PublishAsync sends a change to Kafka without blocking the caller.
	// The returned channel receives exactly one result when the write completes.
	PublishAsync(ctx context.Context, change changestream.ResultChange) <-chan ProduceResult

	// Close gracefully shuts down the producer
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements the Producer interface using kafka-go
type KafkaProducer struct {
	writer messageWriter
}

// Config holds Kafka producer configuration
type Config struct {
	Brokers []string
	Topic   string
	// ErrorLogger receives the writer's internal errors when set
	ErrorLogger *logger.Logger
}

// NewKafkaProducer creates a new KafkaProducer instance. Messages sharing a
// key land on the same partition, so a group's changes stay ordered.
func NewKafkaProducer(cfg Config) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	if cfg.ErrorLogger != nil {
		w.ErrorLogger = kafka.LoggerFunc(cfg.ErrorLogger.Zap().Sugar().Errorf)
	}
	return &KafkaProducer{writer: w}
}

// Key is the partition key of a change: its group, or the match when the
// group is unknown
func Key(change changestream.ResultChange) []byte {
	if change.GroupID != "" {
		return []byte(change.GroupID)
	}
	return []byte(change.MatchID)
}

// PublishAsync sends a change to Kafka asynchronously
func (p *KafkaProducer) PublishAsync(ctx context.Context, change changestream.ResultChange) <-chan ProduceResult {
	resultChan := make(chan ProduceResult, 1)

	value, err := json.Marshal(change)
	if err != nil {
		resultChan <- ProduceResult{Error: fmt.Errorf("failed to encode change %s: %w", change.ID, err)}
		close(resultChan)
		return resultChan
	}

	msg := kafka.Message{
		Key:   Key(change),
		Value: value,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(change.Operation)},
		},
	}

	// a synchronous write per message, so each caller learns its own outcome
	go func() {
		err := p.writer.WriteMessages(ctx, msg)
		resultChan <- ProduceResult{Error: err}
		close(resultChan)
	}()

	return resultChan
}

// Close gracefully shuts down the producer
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

package producer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standings/pkg/changestream"
	"standings/pkg/logger"
)

type recordingWriter struct {
	mu    sync.Mutex
	msgs  []kafka.Message
	err   error
	delay time.Duration
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishAsyncNonBlockingProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("PublishAsync returns before the write completes", prop.ForAll(
		func(matchID, groupID string) bool {
			p := &KafkaProducer{writer: &recordingWriter{delay: 50 * time.Millisecond}}

			start := time.Now()
			_ = p.PublishAsync(context.Background(), changestream.ResultChange{ID: "t", MatchID: matchID, GroupID: groupID})
			return time.Since(start) < 10*time.Millisecond
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestPublishAsyncWritesKeyedJSON(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaProducer{writer: w}

	change := changestream.ResultChange{ID: "tok-1", Operation: "replace", MatchID: "m1", GroupID: "g-a"}
	res := <-p.PublishAsync(context.Background(), change)
	require.NoError(t, res.Error)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "g-a", string(w.msgs[0].Key))

	var decoded changestream.ResultChange
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, change, decoded)
}

func TestPublishAsyncReportsFailure(t *testing.T) {
	p := &KafkaProducer{writer: &recordingWriter{err: errors.New("leader not available")}}

	select {
	case res := <-p.PublishAsync(context.Background(), changestream.ResultChange{MatchID: "m1"}):
		assert.Error(t, res.Error)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestKeyFallsBackToMatch(t *testing.T) {
	assert.Equal(t, []byte("g-a"), Key(changestream.ResultChange{MatchID: "m1", GroupID: "g-a"}))
	assert.Equal(t, []byte("m1"), Key(changestream.ResultChange{MatchID: "m1"}))
}

func TestClose(t *testing.T) {
	p := NewKafkaProducer(Config{
		Brokers:     []string{"localhost:9092"},
		Topic:       "match-results",
		ErrorLogger: logger.Nop(),
	})
	assert.NotNil(t, p.writer.(*kafka.Writer).ErrorLogger)
	assert.NoError(t, p.Close())
}

package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestEmitter_PublishConsolidated(t *testing.T) {
	writer := &fakeWriter{}
	producer := kafka.NewProducerWithWriter(writer, "resource-events", zapadapter.NewZapEctoLogger(zap.NewNop(), nil))
	emitter := events.NewEmitter(producer)

	event := models.ConsolidatedEvent{
		RunID:      "run-1",
		KeepID:     "core",
		RemovedIDs: []string{"internal"},
		Status:     models.ConsolidationRunCompleted,
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, emitter.PublishConsolidated(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "core", string(msg.Key))
	require.NotEmpty(t, msg.Headers)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, events.TypeResourceConsolidated, string(msg.Headers[0].Value))

	var body struct {
		Type    string                   `json:"type"`
		Payload models.ConsolidatedEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, events.TypeResourceConsolidated, body.Type)
	assert.Equal(t, event, body.Payload)
}

func TestEmitter_PublishError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("leader not available")}
	producer := kafka.NewProducerWithWriter(writer, "resource-events", zapadapter.NewZapEctoLogger(zap.NewNop(), nil))

	err := events.NewEmitter(producer).PublishConsolidated(context.Background(), models.ConsolidatedEvent{KeepID: "core"})
	assert.ErrorContains(t, err, "leader not available")
}

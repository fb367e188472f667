package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/pkg/logger"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestEventPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &EventPublisher{writer: w, topic: "document_conversions", logger: logger.Discard()}

	event := models.ConversionEvent{RequestID: "req-1", Source: "a.pdf", Mode: "batch", Pages: 2}
	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "req-1", string(w.msgs[0].Key))

	var got models.ConversionEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, event, got)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestEventPublisher_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := &EventPublisher{writer: w, topic: "t", logger: logger.Discard()}
	assert.Error(t, p.Publish(context.Background(), models.ConversionEvent{RequestID: "x"}))
}

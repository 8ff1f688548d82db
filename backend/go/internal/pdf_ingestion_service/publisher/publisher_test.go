package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPublishRequestKeysByIngestion(t *testing.T) {
	w := &recordingWriter{}
	p := NewIngestionPublisher(w, "ingest.requests", "ingest.events", logger.Nop())

	err := p.PublishRequest(context.Background(), models.IngestionMessage{
		RequestID: "req-1",
		Request:   models.IngestRequest{SourceURL: "https://x/a.pdf", ProjectID: "saga", IngestionID: "ingest-1"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ingest.requests", msg.Topic)
	assert.Equal(t, "saga/ingest-1", string(msg.Key))

	var got models.IngestionMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "https://x/a.pdf", got.Request.SourceURL)
}

func TestPublishEvent(t *testing.T) {
	w := &recordingWriter{}
	p := NewIngestionPublisher(w, "ingest.requests", "ingest.events", logger.Nop())

	require.NoError(t, p.PublishEvent(context.Background(), models.IngestionEvent{
		ProjectID: "saga", IngestionID: "ingest-1", Status: models.IngestionStatusSuccess, PageCount: 3,
	}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ingest.events", w.msgs[0].Topic)
	assert.Contains(t, string(w.msgs[0].Value), `"status":"success"`)
}

func TestPublishEventWithoutTopicIsNoop(t *testing.T) {
	w := &recordingWriter{}
	p := NewIngestionPublisher(w, "ingest.requests", "", logger.Nop())

	require.NoError(t, p.PublishEvent(context.Background(), models.IngestionEvent{ProjectID: "p", IngestionID: "i"}))
	assert.Empty(t, w.msgs)
}

func TestPublishWrapsWriterErrors(t *testing.T) {
	broker := errors.New("broker down")
	p := NewIngestionPublisher(&recordingWriter{err: broker}, "ingest.requests", "ingest.events", logger.Nop())

	err := p.PublishRequest(context.Background(), models.IngestionMessage{})
	assert.ErrorIs(t, err, broker)
}

package consumer

import (
	"context"
	"time"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. Its error is logged; the message is committed either way.
type Handler func(ctx context.Context, msg kafka.Message) error

// RequestConsumer feeds queued ingestion requests to a handler one at a time.
type RequestConsumer struct {
	reader  MessageReader
	logger  *logger.Logger
	backoff time.Duration
}

// NewRequestConsumer creates a consumer on reader.
func NewRequestConsumer(reader MessageReader, logger *logger.Logger) *RequestConsumer {
	return &RequestConsumer{
		reader:  reader,
		logger:  logger,
		backoff: time.Second,
	}
}

// Start runs the consumer in a goroutine. The returned channel is closed when it stops.
func (c *RequestConsumer) Start(ctx context.Context, handler Handler) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, handler)
	}()
	return done
}

// Run consumes until ctx ends.
func (c *RequestConsumer) Run(ctx context.Context, handler Handler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping Kafka request consumer...")
				return
			}
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error fetching message from Kafka")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Error handling Kafka message")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to commit Kafka message")
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *RequestConsumer) Close() error {
	return c.reader.Close()
}

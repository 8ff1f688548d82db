package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// IngestionPublisher publishes ingestion requests and completion events.
// Messages are keyed by projectID/ingestionID so one ingestion stays on one partition.
type IngestionPublisher struct {
	writer        MessageWriter
	requestsTopic string
	eventsTopic   string
	logger        *logger.Logger
}

// NewIngestionPublisher creates a publisher on a topic-less writer.
func NewIngestionPublisher(writer MessageWriter, requestsTopic, eventsTopic string, logger *logger.Logger) *IngestionPublisher {
	return &IngestionPublisher{
		writer:        writer,
		requestsTopic: requestsTopic,
		eventsTopic:   eventsTopic,
		logger:        logger,
	}
}

// PublishRequest queues an asynchronous ingestion.
func (p *IngestionPublisher) PublishRequest(ctx context.Context, msg models.IngestionMessage) error {
	key := models.RecordKey(msg.Request.ProjectID, msg.Request.IngestionID)
	return p.publish(ctx, p.requestsTopic, key, msg)
}

// PublishEvent announces the outcome of an ingestion. It is a no-op when
// no events topic is configured.
func (p *IngestionPublisher) PublishEvent(ctx context.Context, event models.IngestionEvent) error {
	if p.eventsTopic == "" {
		return nil
	}
	return p.publish(ctx, p.eventsTopic, models.RecordKey(event.ProjectID, event.IngestionID), event)
}

func (p *IngestionPublisher) publish(ctx context.Context, topic, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal Kafka message")
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"topic": topic, "key": key}).Error("Failed to write message to Kafka")
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

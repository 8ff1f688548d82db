package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"otherly/backend/go/internal/config"

	"github.com/segmentio/kafka-go"
)

// KafkaClient holds the admin connection and the shared writer.
// Readers are created per consumer group by NewReader.
type KafkaClient struct {
	Writer *kafka.Writer
	Conn   *kafka.Conn
	Config *config.KafkaConfig
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient connects to the first broker, creates missing ingestion topics and
// returns the process-wide client.
func GetClient(cfg *config.KafkaConfig) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("no Kafka brokers configured")
			return
		}

		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("dial Kafka: %w", err)
			return
		}

		if err := ensureTopics(conn, cfg.RequestsTopic, cfg.EventsTopic); err != nil {
			initErr = err
			conn.Close()
			return
		}

		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		}

		log.Println("connected to Kafka")
		client = &KafkaClient{Writer: writer, Conn: conn, Config: cfg}
	})

	return client, initErr
}

func ensureTopics(conn *kafka.Conn, topics ...string) error {
	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("read Kafka partitions: %w", err)
	}
	existing := make(map[string]struct{}, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = struct{}{}
	}

	var missing []kafka.TopicConfig
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if _, ok := existing[topic]; ok {
			continue
		}
		missing = append(missing, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	if len(missing) == 0 {
		return nil
	}
	if err := conn.CreateTopics(missing...); err != nil {
		return fmt.Errorf("create Kafka topics: %w", err)
	}
	log.Printf("created %d Kafka topics", len(missing))
	return nil
}

// NewReader creates a consumer-group reader for topic.
func (c *KafkaClient) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.Config.Brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxAttempts: 10,
		Dialer: &kafka.Dialer{
			Timeout: 10 * time.Second,
		},
	})
}

// Close closes the writer and the admin connection.
func (c *KafkaClient) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Writer != nil {
		if err := c.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Kafka writer: %w", err))
		}
	}
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Kafka admin connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck asks the cluster for its controller.
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("Kafka client is not initialized")
	}
	_, err := c.Conn.Controller()
	return err
}

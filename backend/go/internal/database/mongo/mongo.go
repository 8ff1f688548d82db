// Package mongo connects the ingestion record store.
package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"otherly/backend/go/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	appName            = "otherly-pdf-ingestion"
	defaultConnTimeout = 10 * time.Second
)

var (
	client  *mongo.Client
	once    sync.Once
	initErr error
)

func connectTimeout(cfg *config.MongoConfig) time.Duration {
	if d := config.Duration(cfg.ConnectTimeout); d > 0 {
		return d
	}
	return defaultConnTimeout
}

// ClientOptions maps the record store settings onto driver options.
// Credentials are set only when both username and password are present.
func ClientOptions(cfg *config.MongoConfig) *options.ClientOptions {
	timeout := connectTimeout(cfg)
	opts := options.Client().
		ApplyURI(cfg.Address).
		SetAppName(appName).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	return opts
}

// GetClient returns the process-wide client, connecting on first use.
func GetClient(cfg *config.MongoConfig) (*mongo.Client, error) {
	once.Do(func() {
		opts := ClientOptions(cfg)
		if err := opts.Validate(); err != nil {
			initErr = fmt.Errorf("mongodb options: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout(cfg))
		defer cancel()

		c, err := mongo.Connect(ctx, opts)
		if err != nil {
			initErr = fmt.Errorf("connect to MongoDB: %w", err)
			return
		}
		if err = c.Ping(ctx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			initErr = fmt.Errorf("ping MongoDB: %w", err)
			return
		}
		client = c
	})

	return client, initErr
}

// Records returns the collection holding ingestion records.
func Records(c *mongo.Client, cfg *config.MongoConfig) *mongo.Collection {
	return c.Database(cfg.Database).Collection(cfg.Collection)
}

// Close disconnects the shared client.
func Close(ctx context.Context) error {
	if client != nil {
		return client.Disconnect(ctx)
	}
	return nil
}

// HealthCheck pings the primary.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("MongoDB client is not initialized")
	}
	return client.Ping(ctx, nil)
}

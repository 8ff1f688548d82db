// Package redis connects the progress cache.
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"otherly/backend/go/internal/config"

	"github.com/go-redis/redis/v8"
)

const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 3 * time.Second
)

// Client is the shared connection together with the keyspace progress
// entries live under.
type Client struct {
	*redis.Client
	// KeyPrefix has no trailing separator.
	KeyPrefix string
	// ProgressTTL is zero when entries never expire.
	ProgressTTL time.Duration
}

var (
	client  *Client
	once    sync.Once
	initErr error
)

// Options maps the progress cache settings onto client options.
func Options(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	}
}

func newClient(cfg *config.RedisConfig) *Client {
	return &Client{
		Client:      redis.NewClient(Options(cfg)),
		KeyPrefix:   strings.TrimRight(cfg.KeyPrefix, ":"),
		ProgressTTL: config.Duration(cfg.ProgressTTL),
	}
}

// GetClient returns the process-wide client, connecting on first use.
func GetClient(cfg *config.RedisConfig) (*Client, error) {
	once.Do(func() {
		c := newClient(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Client.Close()
			initErr = fmt.Errorf("connect to Redis at %s: %w", cfg.Address, err)
			return
		}
		client = c
	})

	return client, initErr
}

// Close closes the shared client.
func Close() error {
	if client != nil {
		return client.Client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("Redis client is not initialized")
	}
	return client.Ping(ctx).Err()
}

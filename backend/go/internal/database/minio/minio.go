package minio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"otherly/backend/go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	client  *minio.Client
	once    sync.Once
	initErr error
)

// GetClient returns the process-wide MinIO client, creating it and the
// artifact bucket on first use.
func GetClient(cfg *config.MinIOConfig) (*minio.Client, error) {
	once.Do(func() {
		c, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
			Region: cfg.Region,
		})
		if err != nil {
			initErr = fmt.Errorf("create MinIO client: %w", err)
			return
		}

		if err := EnsureBucket(context.Background(), c, cfg.Bucket, cfg.Region); err != nil {
			initErr = err
			return
		}

		log.Printf("connected to MinIO at %s, bucket %s", cfg.Endpoint, cfg.Bucket)
		client = c
	})

	return client, initErr
}

// EnsureBucket creates bucket if it does not exist yet.
func EnsureBucket(ctx context.Context, c *minio.Client, bucket, region string) error {
	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// HealthCheck verifies the client can list buckets.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("MinIO client is not initialized")
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("MinIO health check: %w", err)
	}
	return nil
}

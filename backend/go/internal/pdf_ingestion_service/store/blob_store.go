package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"otherly/backend/go/internal/config"

	"github.com/minio/minio-go/v7"
)

// ErrNotFound is returned when a key or record does not exist.
var ErrNotFound = errors.New("not found")

// BlobStore persists ingestion artifacts under string keys.
// Put overwrites; there is no delete.
type BlobStore interface {
	// Put stores data at key and returns its public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// URL is the public URL of key, whether or not it exists.
	URL(key string) string
}

// MinIOBlobStore is a BlobStore backed by one S3-compatible bucket.
type MinIOBlobStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinIOBlobStore creates a store for cfg.Bucket. Public URLs are
// path-style under cfg.PublicBaseURL, or under the endpoint when unset.
func NewMinIOBlobStore(client *minio.Client, cfg config.MinIOConfig) *MinIOBlobStore {
	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.Secure {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &MinIOBlobStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(base, "/"),
	}
}

func (s *MinIOBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *MinIOBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return true, nil
}

func (s *MinIOBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *MinIOBlobStore) URL(key string) string {
	return s.baseURL + "/" + s.bucket + "/" + key
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// MemoryBlobStore is an in-process BlobStore. It records the order of writes.
type MemoryBlobStore struct {
	mu      sync.Mutex
	objects map[string]MemoryObject
	writes  []string
	baseURL string
}

// MemoryObject is one stored value of a MemoryBlobStore.
type MemoryObject struct {
	Data        []byte
	ContentType string
}

// NewMemoryBlobStore creates an empty store whose URLs start with baseURL.
func NewMemoryBlobStore(baseURL string) *MemoryBlobStore {
	return &MemoryBlobStore{
		objects: make(map[string]MemoryObject),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (m *MemoryBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = MemoryObject{Data: append([]byte(nil), data...), ContentType: contentType}
	m.writes = append(m.writes, key)
	return m.URL(key), nil
}

func (m *MemoryBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), obj.Data...), nil
}

func (m *MemoryBlobStore) URL(key string) string {
	return m.baseURL + "/" + key
}

// Object returns the stored value at key.
func (m *MemoryBlobStore) Object(key string) (MemoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Writes returns every Put key in call order, repeats included.
func (m *MemoryBlobStore) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// Keys returns the number of distinct stored keys.
func (m *MemoryBlobStore) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

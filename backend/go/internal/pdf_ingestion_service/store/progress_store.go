package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"otherly/backend/go/internal/models"

	"github.com/go-redis/redis/v8"
)

// ProgressStore holds the live stage of running ingestions.
type ProgressStore interface {
	Save(ctx context.Context, projectID, ingestionID string, p models.Progress) error
	// Load returns ErrNotFound when no progress was recorded or it expired.
	Load(ctx context.Context, projectID, ingestionID string) (*models.Progress, error)
}

// RedisProgressStore keeps one hash per ingestion with a sliding TTL.
type RedisProgressStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisProgressStore creates a store writing under prefix whose entries
// expire ttl after their last update.
func NewRedisProgressStore(client *redis.Client, prefix string, ttl time.Duration) *RedisProgressStore {
	return &RedisProgressStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisProgressStore) key(projectID, ingestionID string) string {
	return s.prefix + ":" + models.RecordKey(projectID, ingestionID)
}

func (s *RedisProgressStore) Save(ctx context.Context, projectID, ingestionID string, p models.Progress) error {
	key := s.key(projectID, ingestionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, progressFields(p))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save progress %s: %w", key, err)
	}
	return nil
}

func (s *RedisProgressStore) Load(ctx context.Context, projectID, ingestionID string) (*models.Progress, error) {
	key := s.key(projectID, ingestionID)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load progress %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parseProgress(fields), nil
}

func progressFields(p models.Progress) map[string]interface{} {
	return map[string]interface{}{
		"stage":        p.Stage,
		"chunks_done":  p.ChunksDone,
		"chunks_total": p.ChunksTotal,
		"pages_done":   p.PagesDone,
		"pages_total":  p.PagesTotal,
		"updated_at":   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func parseProgress(fields map[string]string) *models.Progress {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(fields[k])
		return n
	}
	updated, _ := time.Parse(time.RFC3339, fields["updated_at"])
	return &models.Progress{
		Stage:       fields["stage"],
		ChunksDone:  atoi("chunks_done"),
		ChunksTotal: atoi("chunks_total"),
		PagesDone:   atoi("pages_done"),
		PagesTotal:  atoi("pages_total"),
		UpdatedAt:   updated,
	}
}

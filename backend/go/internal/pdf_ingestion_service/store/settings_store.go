package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/pkg/cache"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsStore keeps one settings record per project.
type SettingsStore interface {
	// Get returns the project's settings, creating an empty record if none exists.
	Get(ctx context.Context, projectID string) (*models.ProjectSettings, error)
	// Save inserts or replaces the project's settings.
	Save(ctx context.Context, s *models.ProjectSettings) error
}

// GormSettingsStore is a SettingsStore on any GORM dialect.
type GormSettingsStore struct {
	db *gorm.DB
}

// NewGormSettingsStore creates a store on db. The table must already be migrated.
func NewGormSettingsStore(db *gorm.DB) *GormSettingsStore {
	return &GormSettingsStore{db: db}
}

func (s *GormSettingsStore) Get(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	var out models.ProjectSettings
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&out).Error
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load settings %s: %w", projectID, err)
	}

	out = models.ProjectSettings{ProjectID: projectID, FieldRules: []byte("{}")}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&out).Error
	if err != nil {
		return nil, fmt.Errorf("create default settings %s: %w", projectID, err)
	}
	return &out, nil
}

func (s *GormSettingsStore) Save(ctx context.Context, settings *models.ProjectSettings) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(settings).Error
	if err != nil {
		return fmt.Errorf("save settings %s: %w", settings.ProjectID, err)
	}
	return nil
}

// CachedSettingsStore serves repeated Gets of the same project from an LRU.
// Save writes through and refreshes the cached copy.
type CachedSettingsStore struct {
	inner SettingsStore
	lru   *cache.LRU[string, models.ProjectSettings]
}

// NewCachedSettingsStore wraps inner with a cache of capacity projects whose
// entries expire after ttl.
func NewCachedSettingsStore(inner SettingsStore, capacity int, ttl time.Duration) *CachedSettingsStore {
	return &CachedSettingsStore{inner: inner, lru: cache.New[string, models.ProjectSettings](capacity, ttl)}
}

func (s *CachedSettingsStore) Get(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	if hit, ok := s.lru.Get(projectID); ok {
		return &hit, nil
	}
	out, err := s.inner.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.lru.Put(projectID, *out)
	return out, nil
}

func (s *CachedSettingsStore) Save(ctx context.Context, settings *models.ProjectSettings) error {
	if err := s.inner.Save(ctx, settings); err != nil {
		s.lru.Delete(settings.ProjectID)
		return err
	}
	s.lru.Put(settings.ProjectID, *settings)
	return nil
}

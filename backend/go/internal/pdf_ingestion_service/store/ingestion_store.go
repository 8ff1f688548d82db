package store

import (
	"context"
	"errors"
	"time"

	"otherly/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IngestionStore keeps the bookkeeping record of each ingestion.
type IngestionStore interface {
	// Upsert replaces the record with the same project and ingestion id.
	Upsert(ctx context.Context, rec *models.IngestionRecord) error
	// Get returns ErrNotFound when no record exists.
	Get(ctx context.Context, projectID, ingestionID string) (*models.IngestionRecord, error)
	// Complete stores the terminal state of an ingestion.
	Complete(ctx context.Context, projectID, ingestionID string, outcome Outcome) error
}

// Outcome is the terminal state written by Complete.
type Outcome struct {
	Status      models.IngestionStatus
	ManifestURL string
	PageCount   int
	ErrorKind   string
	Error       string
	CompletedAt time.Time
}

// MongoIngestionStore is an IngestionStore backed by one MongoDB collection.
type MongoIngestionStore struct {
	collection *mongo.Collection
}

// NewMongoIngestionStore creates a store on collection.
func NewMongoIngestionStore(collection *mongo.Collection) *MongoIngestionStore {
	return &MongoIngestionStore{collection: collection}
}

func (s *MongoIngestionStore) Upsert(ctx context.Context, rec *models.IngestionRecord) error {
	rec.ID = models.RecordKey(rec.ProjectID, rec.IngestionID)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoIngestionStore) Get(ctx context.Context, projectID, ingestionID string) (*models.IngestionRecord, error) {
	var rec models.IngestionRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": models.RecordKey(projectID, ingestionID)}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *MongoIngestionStore) Complete(ctx context.Context, projectID, ingestionID string, o Outcome) error {
	update := bson.M{
		"$set": bson.M{
			"status":       o.Status,
			"manifest_url": o.ManifestURL,
			"page_count":   o.PageCount,
			"error_kind":   o.ErrorKind,
			"error":        o.Error,
			"completed_at": o.CompletedAt,
		},
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": models.RecordKey(projectID, ingestionID)}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

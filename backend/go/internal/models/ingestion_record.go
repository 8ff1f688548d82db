package models

import (
	"time"
)

// IngestionStatus is the lifecycle state of an ingestion record.
type IngestionStatus string

const (
	IngestionStatusPending IngestionStatus = "pending"
	IngestionStatusRunning IngestionStatus = "running"
	IngestionStatusSuccess IngestionStatus = "success"
	IngestionStatusFailed  IngestionStatus = "failed"
)

// IngestionRecord is the bookkeeping row of one ingestion attempt.
// It is informational; only the manifest object marks a committed ingestion.
type IngestionRecord struct {
	ID          string          `bson:"_id" json:"id"` // projectID/ingestionID
	ProjectID   string          `bson:"project_id" json:"projectId"`
	IngestionID string          `bson:"ingestion_id" json:"ingestionId"`
	SourceURL   string          `bson:"source_url" json:"sourceUrl"`
	Status      IngestionStatus `bson:"status" json:"status"`
	RequestID   string          `bson:"request_id" json:"requestId"`
	ManifestURL string          `bson:"manifest_url,omitempty" json:"manifestUrl,omitempty"`
	PageCount   int             `bson:"page_count" json:"pageCount"`
	ErrorKind   string          `bson:"error_kind,omitempty" json:"errorKind,omitempty"`
	Error       string          `bson:"error,omitempty" json:"error,omitempty"`
	SubmittedAt time.Time       `bson:"submitted_at" json:"submittedAt"`
	CompletedAt time.Time       `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
}

// RecordKey builds the record id for a project-scoped ingestion.
func RecordKey(projectID, ingestionID string) string {
	return projectID + "/" + ingestionID
}

// IngestionEvent is published when an ingestion finishes, successfully or not.
type IngestionEvent struct {
	RequestID   string          `json:"requestId"`
	ProjectID   string          `json:"projectId"`
	IngestionID string          `json:"ingestionId"`
	Status      IngestionStatus `json:"status"`
	ManifestURL string          `json:"manifestUrl,omitempty"`
	PageCount   int             `json:"pageCount"`
	ErrorKind   string          `json:"errorKind,omitempty"`
	Error       string          `json:"error,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// IngestionMessage is the Kafka payload of an asynchronous ingestion request.
type IngestionMessage struct {
	RequestID string        `json:"requestId"`
	Request   IngestRequest `json:"request"`
}

// Progress is the live stage of a running ingestion.
type Progress struct {
	Stage       string    `json:"stage"`
	ChunksDone  int       `json:"chunksDone"`
	ChunksTotal int       `json:"chunksTotal"`
	PagesDone   int       `json:"pagesDone"`
	PagesTotal  int       `json:"pagesTotal"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Package ocr adapts OCR backends to the chunk-local OcrDocument shape.
package ocr

import (
	"context"
	"errors"

	"otherly/backend/go/internal/models"
)

// ErrInvalidDocument marks a rejection caused by the submitted document
// rather than by the service. Callers should not retry it.
var ErrInvalidDocument = errors.New("document rejected by OCR engine")

// Engine performs OCR on one standalone document of at most MaxPages pages.
type Engine interface {
	// Process returns one OcrPage per page of doc, in document order.
	Process(ctx context.Context, doc []byte, mediaType string) (*models.OcrDocument, error)
	// MaxPages is the per-call page ceiling.
	MaxPages() int
	// Name identifies the engine in logs.
	Name() string
}

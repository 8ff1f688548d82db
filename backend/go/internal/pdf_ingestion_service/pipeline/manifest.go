package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/internal/pdf_ingestion_service/store"
)

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypePNG  = "image/png"
)

// ManifestInput is everything the manifest commit needs.
type ManifestInput struct {
	ID        models.IngestionIdentifier
	SourceURL string
	FullText  string
	Pages     []models.PageArtifact
	Tags      models.TagsDocument
}

// FinalizedManifest is the committed manifest and where it lives.
type FinalizedManifest struct {
	Manifest    models.Manifest
	ManifestURL string
}

// ManifestBuilder verifies a finished ingestion and commits it.
type ManifestBuilder struct {
	blobs store.BlobStore
	now   func() time.Time
}

// NewManifestBuilder creates a builder writing to blobs.
func NewManifestBuilder(blobs store.BlobStore) *ManifestBuilder {
	return &ManifestBuilder{blobs: blobs, now: time.Now}
}

// Verify checks that pages and tags describe pages 1..N exactly once each, in order.
func (in ManifestInput) Verify() error {
	for i, p := range in.Pages {
		if p.Page != i+1 {
			return Errorf(KindValidation, "manifest.verify", "page artifact %d has page number %d", i, p.Page)
		}
		if p.PageTextURL == "" {
			return Errorf(KindValidation, "manifest.verify", "page %d has no text artifact", p.Page)
		}
	}
	if len(in.Tags.Pages) != len(in.Pages) {
		return Errorf(KindValidation, "manifest.verify", "%d tag records for %d pages", len(in.Tags.Pages), len(in.Pages))
	}
	for i, t := range in.Tags.Pages {
		if t.Page != i+1 {
			return Errorf(KindValidation, "manifest.verify", "tag record %d has page number %d", i, t.Page)
		}
	}
	return nil
}

// Finalize writes fullText.txt, then tags.json, then manifest.json.
// The manifest exists only if everything before it was written.
func (b *ManifestBuilder) Finalize(ctx context.Context, in ManifestInput) (*FinalizedManifest, error) {
	if err := in.Verify(); err != nil {
		return nil, err
	}
	pages := in.Pages
	if pages == nil {
		pages = []models.PageArtifact{}
	}
	if in.Tags.Pages == nil {
		in.Tags.Pages = []models.TagRecord{}
	}
	in.Tags.IngestionID = in.ID.ID

	prefix := in.ID.Prefix
	fullTextURL, err := b.blobs.Put(ctx, FullTextKey(prefix), []byte(in.FullText), contentTypeText)
	if err != nil {
		return nil, Wrap(KindExternalService, "manifest.fulltext", err)
	}

	tagsJSON, err := json.MarshalIndent(in.Tags, "", "  ")
	if err != nil {
		return nil, Wrap(KindValidation, "manifest.tags", err)
	}
	tagsURL, err := b.blobs.Put(ctx, TagsKey(prefix), tagsJSON, contentTypeJSON)
	if err != nil {
		return nil, Wrap(KindExternalService, "manifest.tags", err)
	}

	m := models.Manifest{
		IngestionID: in.ID.ID,
		CreatedAt:   b.now().UTC().Truncate(time.Second),
		SourceURL:   in.SourceURL,
		PageCount:   len(pages),
		FullTextURL: fullTextURL,
		TagsURL:     tagsURL,
		Pages:       pages,
	}
	for _, p := range pages {
		if p.HasImage() {
			m.PageImagesCount++
		} else {
			m.ImagesMissingCount++
		}
	}

	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, Wrap(KindValidation, "manifest.encode", err)
	}
	manifestURL, err := b.blobs.Put(ctx, ManifestKey(prefix), body, contentTypeJSON)
	if err != nil {
		return nil, Wrap(KindExternalService, "manifest.commit", err)
	}
	return &FinalizedManifest{Manifest: m, ManifestURL: manifestURL}, nil
}

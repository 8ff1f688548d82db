package models

import (
	"fmt"
	"time"
)

const (
	// MediaTypePDF is the only source media type the splitter understands.
	MediaTypePDF = "application/pdf"
	// MediaTypePNG is the canonical page image encoding.
	MediaTypePNG = "image/png"
)

// SourceDocument is the immutable input of one ingestion.
type SourceDocument struct {
	Bytes     []byte
	MediaType string
}

// PageRange is a half-open interval [Start, End) of zero-based page indices.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of pages in the range.
func (r PageRange) Len() int {
	return r.End - r.Start
}

// Selection renders the range as a 1-based inclusive page selection, e.g. "16-30".
func (r PageRange) Selection() string {
	if r.Len() == 1 {
		return fmt.Sprintf("%d", r.Start+1)
	}
	return fmt.Sprintf("%d-%d", r.Start+1, r.End)
}

// Valid reports whether the range satisfies 0 <= Start < End <= total.
func (r PageRange) Valid(total int) bool {
	return r.Start >= 0 && r.Start < r.End && r.End <= total
}

// TextSegment locates a run of page text inside one chunk's text.
// Offsets are rune indices, End exclusive.
type TextSegment struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// PageImage is a raster image as declared by the OCR service.
type PageImage struct {
	Bytes     []byte
	MediaType string
	Width     int
	Height    int
}

// OcrPage is one page of a single OCR call, numbered by its position in that call.
type OcrPage struct {
	TextSegments []TextSegment
	Image        *PageImage
}

// OcrDocument is the chunk-local result of one OCR call.
type OcrDocument struct {
	FullText string
	Pages    []OcrPage
}

// OcrPageRecord is an OcrPage placed in the source document.
// PageNumber is global and 1-based; LocalIndex is the zero-based index within the chunk.
type OcrPageRecord struct {
	PageNumber   int
	ChunkIndex   int
	LocalIndex   int
	TextSegments []TextSegment
	Image        *PageImage
}

// PageArtifact is the canonical per-page result written into the manifest.
type PageArtifact struct {
	Page        int     `json:"page"`
	ImageURL    *string `json:"imageUrl"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	PageTextURL string  `json:"pageTextUrl"`

	Text string `json:"-"`
}

// HasImage reports whether a normalized image was stored for the page.
func (p PageArtifact) HasImage() bool {
	return p.ImageURL != nil
}

// IngestionIdentifier is the deterministic handle of one source's artifacts.
type IngestionIdentifier struct {
	ID     string `json:"ingestionId"`
	Prefix string `json:"prefix"`
}

// Manifest is the durable description of one successful ingestion.
type Manifest struct {
	IngestionID        string         `json:"ingestionId"`
	CreatedAt          time.Time      `json:"createdAt"`
	SourceURL          string         `json:"sourceUrl"`
	PageCount          int            `json:"pageCount"`
	FullTextURL        string         `json:"fullTextUrl"`
	TagsURL            string         `json:"tagsUrl"`
	PageImagesCount    int            `json:"pageImagesCount"`
	ImagesMissingCount int            `json:"imagesMissingCount"`
	Pages              []PageArtifact `json:"pages"`
}

// IngestRequest is the caller-facing input of an ingestion.
type IngestRequest struct {
	SourceURL   string `json:"sourceUrl" binding:"required"`
	ProjectID   string `json:"projectId,omitempty"`
	IngestionID string `json:"ingestionId,omitempty"`
}

// IngestResult is returned for a successful ingestion.
type IngestResult struct {
	OK                 bool           `json:"ok"`
	ProjectID          string         `json:"projectId"`
	IngestionID        string         `json:"ingestionId"`
	Prefix             string         `json:"prefix"`
	SourceURL          string         `json:"pdfBlobUrl"`
	PageCount          int            `json:"pageCount"`
	ManifestURL        string         `json:"manifestUrl"`
	FullTextURL        string         `json:"fullTextUrl"`
	TagsURL            string         `json:"tagsUrl"`
	PageImagesCount    int            `json:"pageImagesCount"`
	ImagesMissingCount int            `json:"imagesMissingCount"`
	Pages              []PageArtifact `json:"pages"`
}

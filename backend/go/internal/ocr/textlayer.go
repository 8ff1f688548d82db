package ocr

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"otherly/backend/go/internal/models"

	"github.com/ledongthuc/pdf"
)

// TextLayerEngine reads the embedded text layer instead of running OCR.
// It never yields page images, so every page is recorded image-missing.
type TextLayerEngine struct {
	maxPages int
}

// NewTextLayerEngine creates an engine that accepts up to maxPages per call.
func NewTextLayerEngine(maxPages int) *TextLayerEngine {
	return &TextLayerEngine{maxPages: maxPages}
}

func (e *TextLayerEngine) Name() string { return "textlayer" }

func (e *TextLayerEngine) MaxPages() int { return e.maxPages }

// Process concatenates page texts separated by newlines and records one
// segment per page pointing at its run. Pages whose text cannot be read are
// kept with no segments.
func (e *TextLayerEngine) Process(ctx context.Context, doc []byte, mediaType string) (out *models.OcrDocument, err error) {
	if mediaType != models.MediaTypePDF {
		return nil, fmt.Errorf("%w: text layer needs %s, got %q", ErrInvalidDocument, models.MediaTypePDF, mediaType)
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: read text layer: %v", ErrInvalidDocument, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", ErrInvalidDocument, err)
	}

	if e.maxPages > 0 && r.NumPage() > e.maxPages {
		return nil, fmt.Errorf("%w: %d pages exceeds the %d-page ceiling", ErrInvalidDocument, r.NumPage(), e.maxPages)
	}

	var text strings.Builder
	var offset int64
	out = &models.OcrDocument{}
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := models.OcrPage{}
		p := r.Page(i)
		if !p.V.IsNull() {
			content, err := p.GetPlainText(nil)
			content = strings.TrimSpace(content)
			if err == nil && content != "" {
				if text.Len() > 0 {
					text.WriteByte('\n')
					offset++
				}
				n := int64(utf8.RuneCountInString(content))
				page.TextSegments = []models.TextSegment{{Start: offset, End: offset + n}}
				text.WriteString(content)
				offset += n
			}
		}
		out.Pages = append(out.Pages, page)
	}
	out.FullText = text.String()
	return out, nil
}

package pipeline

import (
	"context"
	"time"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/internal/pdf_ingestion_service/store"
	"otherly/backend/go/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Progress stages reported while a job runs.
const (
	StageOCR        = "ocr"
	StageTagging    = "tagging"
	StageFinalizing = "finalizing"
	StageDone       = "done"
)

// Job is one ingestion handed to the pipeline.
type Job struct {
	ID        models.IngestionIdentifier
	SourceURL string
	Doc       models.SourceDocument
	Rules     string // project extraction rules appended to every tagging prompt

	// Progress, when set, is called after every chunk and stage change.
	Progress func(models.Progress)
}

func (j Job) report(p models.Progress) {
	if j.Progress == nil {
		return
	}
	p.UpdatedAt = time.Now().UTC()
	j.Progress(p)
}

// Pipeline runs OCR, per-page storage, tagging and the manifest commit.
type Pipeline struct {
	orch        *Orchestrator
	normalizer  ImageNormalizer
	tagger      *Tagger
	manifests   *ManifestBuilder
	blobs       store.BlobStore
	concurrency int
	logger      *logger.Logger
}

// New creates a Pipeline. concurrency bounds the page workers within one chunk.
func New(orch *Orchestrator, normalizer ImageNormalizer, tagger *Tagger, blobs store.BlobStore, concurrency int, log *logger.Logger) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		orch:        orch,
		normalizer:  normalizer,
		tagger:      tagger,
		manifests:   NewManifestBuilder(blobs),
		blobs:       blobs,
		concurrency: concurrency,
		logger:      log,
	}
}

// PageCount counts the pages of doc.
func (p *Pipeline) PageCount(doc models.SourceDocument) (int, error) {
	return p.orch.Splitter().PageCount(doc)
}

// Execute ingests job.Doc under job.ID and returns the committed manifest.
// Artifacts already written are left in place when it fails.
func (p *Pipeline) Execute(ctx context.Context, job Job) (*FinalizedManifest, error) {
	log := p.logger.WithField("ingestion_id", job.ID.ID)
	prog := models.Progress{Stage: StageOCR}

	var artifacts []models.PageArtifact
	onChunk := func(ctx context.Context, chunk ChunkResult) error {
		if artifacts == nil {
			artifacts = make([]models.PageArtifact, chunk.TotalPages)
			prog.PagesTotal = chunk.TotalPages
		}
		if err := p.storeChunk(ctx, job.ID.Prefix, chunk, artifacts); err != nil {
			return err
		}
		prog.ChunksTotal = chunk.Chunks
		prog.ChunksDone++
		prog.PagesDone += len(chunk.Pages)
		job.report(prog)
		return nil
	}

	job.report(prog)
	res, err := p.orch.RunWith(ctx, job.Doc, onChunk)
	if err != nil {
		return nil, err
	}
	prog.ChunksTotal = len(res.Chunks)
	prog.PagesTotal = res.TotalPages
	if artifacts == nil {
		artifacts = []models.PageArtifact{}
	}

	prog.Stage = StageTagging
	job.report(prog)
	excerpts := make([]PageExcerpt, len(res.Pages))
	for i, rec := range res.Pages {
		excerpts[i] = PageExcerpt{Page: rec.PageNumber, Text: res.PageTexts[i]}
	}
	records, err := p.tagger.Tag(ctx, excerpts, job.Rules)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Kind: string(KindOf(err))}).Error("Page tagging failed")
		return nil, err
	}

	prog.Stage = StageFinalizing
	job.report(prog)
	final, err := p.manifests.Finalize(ctx, ManifestInput{
		ID:        job.ID,
		SourceURL: job.SourceURL,
		FullText:  res.FullText,
		Pages:     artifacts,
		Tags: models.TagsDocument{
			Model:   p.tagger.Model(),
			Skipped: !p.tagger.Enabled(),
			Pages:   records,
		},
	})
	if err != nil {
		return nil, err
	}

	prog.Stage = StageDone
	job.report(prog)
	log.WithPayload(map[string]interface{}{
		"page_count":     final.Manifest.PageCount,
		"images":         final.Manifest.PageImagesCount,
		"images_missing": final.Manifest.ImagesMissingCount,
		"manifest_url":   final.ManifestURL,
	}).Info("Ingestion committed")
	return final, nil
}

// storeChunk normalizes and uploads every page of chunk in parallel and
// writes each artifact at its page's index.
func (p *Pipeline) storeChunk(ctx context.Context, prefix string, chunk ChunkResult, artifacts []models.PageArtifact) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, rec := range chunk.Pages {
		text := chunk.PageTexts[i]
		g.Go(func() error {
			a, err := p.storePage(gctx, prefix, rec, text)
			if err != nil {
				return err
			}
			artifacts[rec.PageNumber-1] = a
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) storePage(ctx context.Context, prefix string, rec models.OcrPageRecord, text string) (models.PageArtifact, error) {
	a := models.PageArtifact{Page: rec.PageNumber, Text: text}

	if rec.Image != nil {
		norm, err := p.normalizer.Normalize(*rec.Image)
		if err != nil {
			return a, err
		}
		if norm != nil {
			url, err := p.blobs.Put(ctx, PageImageKey(prefix, rec.PageNumber), norm.Bytes, contentTypePNG)
			if err != nil {
				return a, Wrap(KindExternalService, "page.image", err)
			}
			a.ImageURL = &url
			a.Width, a.Height = norm.Width, norm.Height
		}
	}

	url, err := p.blobs.Put(ctx, PageTextKey(prefix, rec.PageNumber), []byte(text), contentTypeText)
	if err != nil {
		return a, Wrap(KindExternalService, "page.text", err)
	}
	a.PageTextURL = url
	return a, nil
}

// NoImagesNote is the render note when the engine produced no page images.
const NoImagesNote = "OCR engine returned no page images for this document."

// ImagesNote is the render note when page images were stored.
const ImagesNote = "Page images normalized and stored."

// RenderedImage is one stored page image of a range render.
type RenderedImage struct {
	Page     int    `json:"page"`
	ImageURL string `json:"imageUrl"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// RenderResult describes a range render.
type RenderResult struct {
	PageCount     int             `json:"pageCount"`
	StartPage     int             `json:"startPage"`
	EndPage       int             `json:"endPage"`
	PageImages    []RenderedImage `json:"pageImages"`
	HasPageImages bool            `json:"hasPageImages"`
	Note          string          `json:"note"`
}

// ClampRenderRange clamps a 1-based inclusive page range to [1,total],
// forces end >= start and caps its length at maxPages.
func ClampRenderRange(start, end, total, maxPages int) (int, int) {
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	start = clamp(start, 1, total)
	end = clamp(end, start, total)
	if maxPages >= 1 && end-start+1 > maxPages {
		end = start + maxPages - 1
	}
	return start, end
}

// Render OCRs pages start..end (1-based, inclusive, clamped) and stores
// their normalized images at prefix/page-NNN.png.
func (p *Pipeline) Render(ctx context.Context, doc models.SourceDocument, prefix string, start, end int) (*RenderResult, error) {
	total, err := p.PageCount(doc)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, Errorf(KindMalformedSource, "render", "document has no pages")
	}
	start, end = ClampRenderRange(start, end, total, p.orch.engine.MaxPages())

	images := make([]*RenderedImage, end-start+1)
	onChunk := func(ctx context.Context, chunk ChunkResult) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for _, rec := range chunk.Pages {
			if rec.Image == nil {
				continue
			}
			g.Go(func() error {
				norm, err := p.normalizer.Normalize(*rec.Image)
				if err != nil || norm == nil {
					return err
				}
				url, err := p.blobs.Put(gctx, RenderImageKey(prefix, rec.PageNumber), norm.Bytes, contentTypePNG)
				if err != nil {
					return Wrap(KindExternalService, "render.image", err)
				}
				images[rec.PageNumber-start] = &RenderedImage{Page: rec.PageNumber, ImageURL: url, Width: norm.Width, Height: norm.Height}
				return nil
			})
		}
		return g.Wait()
	}

	r := models.PageRange{Start: start - 1, End: end}
	if _, err := p.orch.RunRange(ctx, doc, r, onChunk); err != nil {
		return nil, err
	}

	res := &RenderResult{PageCount: total, StartPage: start, EndPage: end, PageImages: []RenderedImage{}}
	for _, img := range images {
		if img != nil {
			res.PageImages = append(res.PageImages, *img)
		}
	}
	res.HasPageImages = len(res.PageImages) > 0
	res.Note = NoImagesNote
	if res.HasPageImages {
		res.Note = ImagesNote
	}
	return res, nil
}

package pipeline

import (
	"context"
	"errors"
	"strings"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/internal/ocr"
	"otherly/backend/go/pkg/circuitbreaker"
	"otherly/backend/go/pkg/logger"
	"otherly/backend/go/pkg/ratelimiter"
)

// chunkSeparator joins consecutive chunk texts in the full text.
const chunkSeparator = "\n\n"

// OcrResult is the whole-document OCR outcome.
type OcrResult struct {
	FullText   string
	Pages      []models.OcrPageRecord
	PageTexts  []string // PageTexts[i] is the text of Pages[i]
	TotalPages int
	Chunks     []models.PageRange
}

// ChunkResult is one chunk's renumbered pages, handed to a ChunkHandler.
type ChunkResult struct {
	Index      int
	Range      models.PageRange
	Chunks     int // number of chunks in the run
	TotalPages int
	Text       string
	Pages      []models.OcrPageRecord
	PageTexts  []string
}

// ChunkHandler consumes a chunk before the next one is submitted.
// A returned error aborts the run.
type ChunkHandler func(ctx context.Context, chunk ChunkResult) error

// Orchestrator drives a document through the OCR engine one chunk at a time.
type Orchestrator struct {
	splitter Splitter
	engine   ocr.Engine
	pacer    ratelimiter.Waiter
	breaker  circuitbreaker.CircuitBreaker
	retry    RetryPolicy
	logger   *logger.Logger
}

// NewOrchestrator creates an Orchestrator. pacer and breaker may be nil.
func NewOrchestrator(splitter Splitter, engine ocr.Engine, pacer ratelimiter.Waiter, breaker circuitbreaker.CircuitBreaker, retry RetryPolicy, log *logger.Logger) *Orchestrator {
	if breaker == nil {
		breaker = circuitbreaker.Disabled()
	}
	return &Orchestrator{
		splitter: splitter,
		engine:   engine,
		pacer:    pacer,
		breaker:  breaker,
		retry:    retry,
		logger:   log,
	}
}

// Splitter returns the splitter used for page counting.
func (o *Orchestrator) Splitter() Splitter {
	return o.splitter
}

// Run OCRs the whole document and keeps every page record, images included.
func (o *Orchestrator) Run(ctx context.Context, doc models.SourceDocument) (*OcrResult, error) {
	return o.RunWith(ctx, doc, nil)
}

// RunWith OCRs the whole document. When onChunk is set, page images are
// handed to it and dropped from the returned records.
func (o *Orchestrator) RunWith(ctx context.Context, doc models.SourceDocument, onChunk ChunkHandler) (*OcrResult, error) {
	total, err := o.splitter.PageCount(doc)
	if err != nil {
		return nil, err
	}
	ranges, err := PlanChunks(total, o.engine.MaxPages())
	if err != nil {
		return nil, Wrap(KindConfiguration, "ocr.plan", err)
	}
	return o.run(ctx, doc, total, ranges, onChunk)
}

// RunRange OCRs only r, which must fit the engine's page ceiling.
func (o *Orchestrator) RunRange(ctx context.Context, doc models.SourceDocument, r models.PageRange, onChunk ChunkHandler) (*OcrResult, error) {
	total, err := o.splitter.PageCount(doc)
	if err != nil {
		return nil, err
	}
	if !r.Valid(total) {
		return nil, Errorf(KindValidation, "ocr.range", "range [%d,%d) outside a %d-page document", r.Start, r.End, total)
	}
	if r.Len() > o.engine.MaxPages() {
		return nil, Errorf(KindValidation, "ocr.range", "range of %d pages exceeds the %d-page ceiling", r.Len(), o.engine.MaxPages())
	}
	return o.run(ctx, doc, total, []models.PageRange{r}, onChunk)
}

func (o *Orchestrator) run(ctx context.Context, doc models.SourceDocument, total int, ranges []models.PageRange, onChunk ChunkHandler) (*OcrResult, error) {
	res := &OcrResult{TotalPages: total, Chunks: ranges}
	texts := make([]string, 0, len(ranges))

	for i, r := range ranges {
		chunk, err := o.processChunk(ctx, doc, i, r, total)
		if err == nil {
			chunk.Chunks = len(ranges)
		} else {
			o.logger.WithError(models.ErrorInfo{Message: err.Error(), Kind: string(KindOf(err))}).
				WithPayload(map[string]interface{}{"chunk": i, "start": r.Start, "end": r.End}).
				Error("OCR chunk failed, aborting ingestion")
			return nil, err
		}

		if onChunk != nil {
			if err := onChunk(ctx, *chunk); err != nil {
				return nil, err
			}
			for j := range chunk.Pages {
				chunk.Pages[j].Image = nil
			}
		}

		texts = append(texts, chunk.Text)
		res.Pages = append(res.Pages, chunk.Pages...)
		res.PageTexts = append(res.PageTexts, chunk.PageTexts...)

		o.logger.WithPayload(map[string]interface{}{
			"chunk":  i + 1,
			"chunks": len(ranges),
			"pages":  r.Len(),
		}).Debug("OCR chunk done")
	}

	res.FullText = strings.Join(texts, chunkSeparator)
	return res, nil
}

func (o *Orchestrator) processChunk(ctx context.Context, doc models.SourceDocument, index int, r models.PageRange, total int) (*ChunkResult, error) {
	sub, err := o.splitter.Split(doc, r)
	if err != nil {
		return nil, err
	}

	var ocrDoc *models.OcrDocument
	err = o.retry.Do(ctx, func(ctx context.Context) error {
		if o.pacer != nil {
			if err := o.pacer.Wait(ctx); err != nil {
				return err
			}
		}
		return o.breaker.Do(ctx, func(ctx context.Context) error {
			d, err := o.engine.Process(ctx, sub, models.MediaTypePDF)
			if err != nil {
				return classifyOcrError(err)
			}
			ocrDoc = d
			return nil
		})
	})
	if err != nil {
		return nil, Wrap(KindExternalService, "ocr.chunk", err)
	}

	if ocrDoc == nil {
		ocrDoc = &models.OcrDocument{}
	}
	if len(ocrDoc.Pages) != r.Len() {
		return nil, Errorf(KindExternalService, "ocr.chunk",
			"engine returned %d pages for pages %s (%d expected)", len(ocrDoc.Pages), r.Selection(), r.Len())
	}

	chunk := &ChunkResult{
		Index:      index,
		Range:      r,
		TotalPages: total,
		Text:       ocrDoc.FullText,
		Pages:      make([]models.OcrPageRecord, len(ocrDoc.Pages)),
		PageTexts:  make([]string, len(ocrDoc.Pages)),
	}
	for local, p := range ocrDoc.Pages {
		chunk.Pages[local] = models.OcrPageRecord{
			PageNumber:   r.Start + local + 1,
			ChunkIndex:   index,
			LocalIndex:   local,
			TextSegments: p.TextSegments,
			Image:        p.Image,
		}
		chunk.PageTexts[local] = ExtractPageText(ocrDoc.FullText, p.TextSegments)
	}
	return chunk, nil
}

// ServiceFailure is a breaker classifier that counts only ExternalServiceError,
// so rejected documents do not open the circuit.
func ServiceFailure(err error) bool {
	return KindOf(err) == KindExternalService
}

func classifyOcrError(err error) error {
	if errors.Is(err, ocr.ErrInvalidDocument) {
		return &Error{Kind: KindMalformedSource, Op: "ocr.chunk", Message: "OCR engine rejected the document", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: KindExternalService, Op: "ocr.chunk", Message: "OCR call failed", Err: err}
}

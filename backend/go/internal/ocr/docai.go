package ocr

import (
	"context"
	"fmt"
	"time"

	"otherly/backend/go/internal/config"
	"otherly/backend/go/internal/models"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DocAIEngine calls a Document AI OCR processor.
type DocAIEngine struct {
	client   *documentai.DocumentProcessorClient
	name     string
	maxPages int
	timeout  time.Duration
}

// NewDocAIEngine validates the service account key and connects to the
// regional endpoint of the configured processor.
func NewDocAIEngine(ctx context.Context, cfg config.DocAIConfig) (*DocAIEngine, error) {
	creds, err := cfg.ServiceAccountJSON()
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	client, err := documentai.NewDocumentProcessorClient(ctx,
		option.WithEndpoint(endpoint),
		option.WithCredentialsJSON(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("create Document AI client: %w", err)
	}

	return &DocAIEngine{
		client:   client,
		name:     ProcessorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID),
		maxPages: cfg.MaxPagesPerCall,
		timeout:  config.Duration(cfg.Timeout),
	}, nil
}

// ProcessorName renders the processor resource name.
func ProcessorName(projectID, location, processorID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID)
}

func (e *DocAIEngine) Name() string { return "docai" }

func (e *DocAIEngine) MaxPages() int { return e.maxPages }

// Process submits doc inline and converts the response.
func (e *DocAIEngine) Process(ctx context.Context, doc []byte, mediaType string) (*models.OcrDocument, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: e.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  doc,
				MimeType: mediaType,
			},
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	return convertDocument(resp.GetDocument()), nil
}

// Close closes the gRPC connection.
func (e *DocAIEngine) Close() error {
	return e.client.Close()
}

// classify marks argument errors as document rejections.
func classify(err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	default:
		return fmt.Errorf("document AI process: %w", err)
	}
}

func convertDocument(d *documentaipb.Document) *models.OcrDocument {
	out := &models.OcrDocument{FullText: d.GetText()}
	for _, p := range d.GetPages() {
		page := models.OcrPage{}
		for _, seg := range p.GetLayout().GetTextAnchor().GetTextSegments() {
			page.TextSegments = append(page.TextSegments, models.TextSegment{
				Start: seg.GetStartIndex(),
				End:   seg.GetEndIndex(),
			})
		}
		if img := p.GetImage(); img != nil && len(img.GetContent()) > 0 {
			page.Image = &models.PageImage{
				Bytes:     img.GetContent(),
				MediaType: img.GetMimeType(),
				Width:     int(img.GetWidth()),
				Height:    int(img.GetHeight()),
			}
		}
		out.Pages = append(out.Pages, page)
	}
	return out
}

package pipeline

import (
	"bytes"
	"sync"

	"otherly/backend/go/internal/models"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Splitter cuts a source document into standalone sub-documents.
type Splitter interface {
	PageCount(doc models.SourceDocument) (int, error)
	// Split returns a document holding exactly the pages of r, in order.
	Split(doc models.SourceDocument, r models.PageRange) ([]byte, error)
}

// PdfSplitter splits PDFs with pdfcpu. Page trees, fonts and resources of
// the kept pages are carried over by the library.
type PdfSplitter struct{}

var disableConfigDir sync.Once

// NewPdfSplitter creates a splitter that never touches the pdfcpu config directory.
func NewPdfSplitter() *PdfSplitter {
	disableConfigDir.Do(api.DisableConfigDir)
	return &PdfSplitter{}
}

// newConf returns a fresh configuration per call; pdfcpu mutates it.
func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func checkPDF(doc models.SourceDocument) error {
	if doc.MediaType != models.MediaTypePDF {
		return Errorf(KindMalformedSource, "split", "unsupported media type %q", doc.MediaType)
	}
	if len(doc.Bytes) == 0 {
		return Errorf(KindMalformedSource, "split", "document is empty")
	}
	return nil
}

func (s *PdfSplitter) PageCount(doc models.SourceDocument) (int, error) {
	if err := checkPDF(doc); err != nil {
		return 0, err
	}
	n, err := api.PageCount(bytes.NewReader(doc.Bytes), newConf())
	if err != nil {
		return 0, &Error{Kind: KindMalformedSource, Op: "split.count", Message: "cannot parse PDF", Err: err}
	}
	return n, nil
}

func (s *PdfSplitter) Split(doc models.SourceDocument, r models.PageRange) ([]byte, error) {
	total, err := s.PageCount(doc)
	if err != nil {
		return nil, err
	}
	if !r.Valid(total) {
		return nil, Errorf(KindMalformedSource, "split", "range [%d,%d) outside a %d-page document", r.Start, r.End, total)
	}

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(doc.Bytes), &out, []string{r.Selection()}, newConf()); err != nil {
		return nil, &Error{Kind: KindMalformedSource, Op: "split", Message: "cannot extract pages " + r.Selection(), Err: err}
	}
	return out.Bytes(), nil
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"otherly/backend/go/internal/models"
)

// fakeSplitter reports a fixed page count and "splits" a range into its selection string.
type fakeSplitter struct {
	pages int
	err   error
}

func (s fakeSplitter) PageCount(models.SourceDocument) (int, error) {
	return s.pages, s.err
}

func (s fakeSplitter) Split(_ models.SourceDocument, r models.PageRange) ([]byte, error) {
	if !r.Valid(s.pages) {
		return nil, Errorf(KindMalformedSource, "split", "bad range")
	}
	return []byte(fmt.Sprintf("%d:%d", r.Start, r.End)), nil
}

func parseRange(doc []byte) models.PageRange {
	start, end, _ := strings.Cut(string(doc), ":")
	s, _ := strconv.Atoi(start)
	e, _ := strconv.Atoi(end)
	return models.PageRange{Start: s, End: e}
}

// fakeEngine answers each call with one page per page of the split range.
// Page g's text is "page g text", pages are separated by a newline.
type fakeEngine struct {
	maxPages int
	// image returns the image of global page g, or nil.
	image func(g int) *models.PageImage
	// fail, when set, is consulted before every call.
	fail func(call int, r models.PageRange) error
	// drop removes that many pages from every answer.
	drop int

	mu    sync.Mutex
	calls []models.PageRange
}

func (e *fakeEngine) Name() string  { return "fake" }
func (e *fakeEngine) MaxPages() int { return e.maxPages }

func (e *fakeEngine) Process(_ context.Context, doc []byte, mediaType string) (*models.OcrDocument, error) {
	r := parseRange(doc)
	e.mu.Lock()
	e.calls = append(e.calls, r)
	call := len(e.calls)
	e.mu.Unlock()

	if e.fail != nil {
		if err := e.fail(call, r); err != nil {
			return nil, err
		}
	}
	return chunkDoc(r, e.image, e.drop), nil
}

func (e *fakeEngine) Calls() []models.PageRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.PageRange(nil), e.calls...)
}

func chunkDoc(r models.PageRange, img func(int) *models.PageImage, drop int) *models.OcrDocument {
	var text []rune
	doc := &models.OcrDocument{}
	for g := r.Start + 1; g <= r.End-drop; g++ {
		if len(text) > 0 {
			text = append(text, '\n')
		}
		start := int64(len(text))
		text = append(text, []rune(fmt.Sprintf("page %d text", g))...)
		page := models.OcrPage{TextSegments: []models.TextSegment{{Start: start, End: int64(len(text))}}}
		if img != nil {
			page.Image = img(g)
		}
		doc.Pages = append(doc.Pages, page)
	}
	doc.FullText = string(text)
	return doc
}

func pngImage(w, h int) []byte {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		m.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// fakeGenerator answers tagging prompts with one record per listed page.
type fakeGenerator struct {
	// respond overrides the default answer when set.
	respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

var promptPage = regexp.MustCompile(`--- page (\d+) ---`)

func (g *fakeGenerator) Model() string { return "fake-model" }

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.respond != nil {
		return g.respond(prompt)
	}
	return tagAnswer(prompt), nil
}

func (g *fakeGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func tagAnswer(prompt string) string {
	var items []map[string]interface{}
	for _, m := range promptPage.FindAllStringSubmatch(prompt, -1) {
		page, _ := strconv.Atoi(m[1])
		items = append(items, map[string]interface{}{
			"page":           page,
			"tags":           []string{"Lore", "lore", " Map "},
			"domainAffinity": map[string]float64{"LORE": 0.9, "world": 1.5},
			"confidence":     0.8,
		})
	}
	out, _ := json.Marshal(items)
	return "```json\n" + string(out) + "\n```"
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"otherly/backend/go/internal/llm"
	"otherly/backend/go/internal/models"
	"otherly/backend/go/pkg/circuitbreaker"
)

// SkippedNote is recorded on every page when no generator is configured.
const SkippedNote = "tagging skipped: no text-generation credential configured"

// PageExcerpt is the text of one page offered for tagging.
type PageExcerpt struct {
	Page int
	Text string
}

// Tagger asks a text generator for per-page semantic tags in fixed-size batches.
type Tagger struct {
	gen          llm.TextGenerator
	breaker      circuitbreaker.CircuitBreaker
	retry        RetryPolicy
	batchSize    int
	excerptChars int
}

// NewTagger creates a Tagger. A nil gen yields placeholder records.
func NewTagger(gen llm.TextGenerator, breaker circuitbreaker.CircuitBreaker, retry RetryPolicy, batchSize, excerptChars int) *Tagger {
	if breaker == nil {
		breaker = circuitbreaker.Disabled()
	}
	return &Tagger{
		gen:          gen,
		breaker:      breaker,
		retry:        retry,
		batchSize:    batchSize,
		excerptChars: excerptChars,
	}
}

// Enabled reports whether a generator is configured.
func (t *Tagger) Enabled() bool {
	return t.gen != nil
}

// Model names the generator's model, or "" when disabled.
func (t *Tagger) Model() string {
	if t.gen == nil {
		return ""
	}
	return t.gen.Model()
}

// Tag returns exactly one record per submitted page, ordered by page.
// rules, when non-empty, is appended to every prompt.
func (t *Tagger) Tag(ctx context.Context, pages []PageExcerpt, rules string) ([]models.TagRecord, error) {
	if t.gen == nil {
		out := make([]models.TagRecord, len(pages))
		for i, p := range pages {
			out[i] = placeholderRecord(p.Page)
		}
		sortRecords(out)
		return out, nil
	}

	size := t.batchSize
	if size < 1 {
		size = 1
	}
	out := make([]models.TagRecord, 0, len(pages))
	for start := 0; start < len(pages); start += size {
		end := start + size
		if end > len(pages) {
			end = len(pages)
		}
		records, err := t.tagBatch(ctx, pages[start:end], rules)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	sortRecords(out)
	return out, nil
}

func (t *Tagger) tagBatch(ctx context.Context, batch []PageExcerpt, rules string) ([]models.TagRecord, error) {
	prompt := buildTagPrompt(batch, rules, t.excerptChars)

	var raw string
	err := t.retry.Do(ctx, func(ctx context.Context) error {
		return t.breaker.Do(ctx, func(ctx context.Context) error {
			text, err := t.gen.Generate(ctx, prompt)
			if err != nil {
				return Wrap(KindExternalService, "tag.generate", err)
			}
			raw = text
			return nil
		})
	})
	if err != nil {
		return nil, Wrap(KindExternalService, "tag.generate", err)
	}

	pageNumbers := make([]int, len(batch))
	for i, p := range batch {
		pageNumbers[i] = p.Page
	}
	return ParseTagResponse(raw, pageNumbers)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func buildTagPrompt(batch []PageExcerpt, rules string, excerptChars int) string {
	var b strings.Builder
	b.WriteString("You are tagging pages of a story bible for retrieval.\n")
	b.WriteString("Return ONLY a JSON array with exactly one object per page listed below, no prose.\n")
	b.WriteString("Each object must have the shape:\n")
	b.WriteString(`{"page": <number>, "tags": [string], "entities": {"characters": [string], "locations": [string], "factions": [string], "objects": [string]}, `)
	b.WriteString(`"domainAffinity": {"OVERVIEW": 0-1, "CHARACTERS": 0-1, "WORLD": 0-1, "LORE": 0-1, "STYLE": 0-1, "STORY": 0-1}, "posterCandidate": boolean, "confidence": 0-1}`)
	b.WriteString("\nTags are short lower-case keywords. Use the page numbers exactly as given.\n")
	if r := strings.TrimSpace(rules); r != "" {
		b.WriteString("\nProject extraction rules:\n")
		b.WriteString(r)
		b.WriteString("\n")
	}
	b.WriteString("\nPages:\n")
	for _, p := range batch {
		fmt.Fprintf(&b, "\n--- page %d ---\n%s\n", p.Page, truncateRunes(p.Text, excerptChars))
	}
	return b.String()
}

// stripCodeFence removes one surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if lang := strings.TrimSpace(body[:nl]); lang == "" || !strings.ContainsAny(lang, "[{") {
			body = body[nl+1:]
		}
	}
	return strings.TrimSpace(body)
}

// rawTag holds one generator record before coercion. Field values keep their
// raw JSON so a wrong type degrades to the field's zero value.
type rawTag map[string]json.RawMessage

// ParseTagResponse decodes a generator response for the given pages. The
// response must be a JSON array with exactly one record per page.
func ParseTagResponse(raw string, pages []int) ([]models.TagRecord, error) {
	body := stripCodeFence(raw)
	if !strings.HasPrefix(body, "[") {
		return nil, Errorf(KindValidation, "tag.parse", "response is not a JSON array")
	}

	var items []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&items); err != nil {
		return nil, &Error{Kind: KindValidation, Op: "tag.parse", Message: "response is not a valid tag array", Err: err}
	}
	if dec.More() {
		return nil, Errorf(KindValidation, "tag.parse", "unexpected data after tag array")
	}

	if len(items) != len(pages) {
		return nil, Errorf(KindValidation, "tag.match", "got %d records for %d pages", len(items), len(pages))
	}
	want := make(map[int]bool, len(pages))
	for _, p := range pages {
		want[p] = true
	}
	seen := make(map[int]bool, len(items))
	out := make([]models.TagRecord, 0, len(items))
	for _, item := range items {
		var it rawTag
		if err := json.Unmarshal(item, &it); err != nil || it == nil {
			return nil, Errorf(KindValidation, "tag.parse", "record is not a JSON object")
		}
		p, ok := pageNumber(it["page"])
		if !ok {
			return nil, Errorf(KindValidation, "tag.match", "record without page number")
		}
		if !want[p] {
			return nil, Errorf(KindValidation, "tag.match", "record for page %d was not requested", p)
		}
		if seen[p] {
			return nil, Errorf(KindValidation, "tag.match", "duplicate record for page %d", p)
		}
		seen[p] = true
		out = append(out, coerce(p, it))
	}
	sortRecords(out)
	return out, nil
}

func coerce(page int, it rawTag) models.TagRecord {
	var ents map[string]json.RawMessage
	_ = json.Unmarshal(it["entities"], &ents)

	var rawAffinity map[string]json.RawMessage
	_ = json.Unmarshal(it["domainAffinity"], &rawAffinity)

	affinity := make(map[string]float64, len(models.Domains))
	for _, d := range models.Domains {
		v, ok := rawAffinity[d]
		if !ok {
			for k, kv := range rawAffinity {
				if strings.EqualFold(k, d) {
					v = kv
					break
				}
			}
		}
		n, _ := asNumber(v)
		affinity[d] = clamp01(n)
	}

	poster, _ := asBool(it["posterCandidate"])
	confidence, _ := asNumber(it["confidence"])
	return models.TagRecord{
		Page: page,
		Tags: normalizeTags(asStrings(it["tags"])),
		Entities: models.TagEntities{
			Characters: cleanList(asStrings(ents["characters"])),
			Locations:  cleanList(asStrings(ents["locations"])),
			Factions:   cleanList(asStrings(ents["factions"])),
			Objects:    cleanList(asStrings(ents["objects"])),
		},
		DomainAffinity:  affinity,
		PosterCandidate: poster,
		Confidence:      clamp01(confidence),
	}
}

// pageNumber accepts an integral JSON number or a numeric string.
func pageNumber(raw json.RawMessage) (int, bool) {
	n, ok := asNumber(raw)
	if !ok || n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func asNumber(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var n float64
	if json.Unmarshal(raw, &n) == nil {
		return n, true
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func asBool(raw json.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, false
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b, true
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return false, false
}

// asStrings reads a list of strings. A lone string becomes a one-element
// list and non-string elements are dropped.
func asStrings(raw json.RawMessage) []string {
	if isNull(raw) {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return []string{s}
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var v string
		if !isNull(item) && json.Unmarshal(item, &v) == nil {
			out = append(out, v)
		}
	}
	return out
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func placeholderRecord(page int) models.TagRecord {
	affinity := make(map[string]float64, len(models.Domains))
	for _, d := range models.Domains {
		affinity[d] = 0
	}
	return models.TagRecord{
		Page: page,
		Tags: []string{},
		Entities: models.TagEntities{
			Characters: []string{},
			Locations:  []string{},
			Factions:   []string{},
			Objects:    []string{},
		},
		DomainAffinity: affinity,
		Note:           SkippedNote,
	}
}

func sortRecords(records []models.TagRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Page < records[j].Page })
}

package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"otherly/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTagResponseCoercesRecords(t *testing.T) {
	raw := "```json\n" + `[
	  {"page": 4, "tags": ["Dragon", "dragon ", ""], "domainAffinity": {"lore": 2, "STYLE": -1, "STORY": 0.25}, "confidence": 7},
	  {"page": 3, "entities": {"characters": [" Ada ", ""], "locations": ["Harbor"]}, "posterCandidate": true}
	]` + "\n```"

	got, err := ParseTagResponse(raw, []int{3, 4})
	require.NoError(t, err)
	require.Len(t, got, 2)

	p3, p4 := got[0], got[1]
	assert.Equal(t, 3, p3.Page)
	assert.Equal(t, []string{}, p3.Tags)
	assert.Equal(t, []string{"Ada"}, p3.Entities.Characters)
	assert.Equal(t, []string{"Harbor"}, p3.Entities.Locations)
	assert.Equal(t, []string{}, p3.Entities.Factions)
	assert.True(t, p3.PosterCandidate)
	assert.Equal(t, 0.0, p3.Confidence)
	assert.Len(t, p3.DomainAffinity, len(models.Domains))

	assert.Equal(t, 4, p4.Page)
	assert.Equal(t, []string{"dragon"}, p4.Tags)
	assert.Equal(t, 1.0, p4.DomainAffinity[models.DomainLore])
	assert.Equal(t, 0.0, p4.DomainAffinity[models.DomainStyle])
	assert.Equal(t, 0.25, p4.DomainAffinity[models.DomainStory])
	assert.Equal(t, 0.0, p4.DomainAffinity[models.DomainOverview])
	assert.Equal(t, 1.0, p4.Confidence)
}

func TestParseTagResponseToleratesLooseTypes(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, r models.TagRecord)
	}{
		{"numeric string confidence", `[{"page": 1, "confidence": "0.9"}]`, func(t *testing.T, r models.TagRecord) {
			assert.Equal(t, 0.9, r.Confidence)
		}},
		{"scalar tags", `[{"page": 1, "tags": "Hero"}]`, func(t *testing.T, r models.TagRecord) {
			assert.Equal(t, []string{"hero"}, r.Tags)
		}},
		{"string boolean", `[{"page": 1, "posterCandidate": "true"}]`, func(t *testing.T, r models.TagRecord) {
			assert.True(t, r.PosterCandidate)
		}},
		{"float page", `[{"page": 1.0}]`, func(t *testing.T, r models.TagRecord) {
			assert.Equal(t, 1, r.Page)
		}},
		{"string page", `[{"page": "1"}]`, func(t *testing.T, r models.TagRecord) {
			assert.Equal(t, 1, r.Page)
		}},
		{"string affinity", `[{"page": 1, "domainAffinity": {"lore": "0.5", "story": true}}]`, func(t *testing.T, r models.TagRecord) {
			assert.Equal(t, 0.5, r.DomainAffinity[models.DomainLore])
			assert.Equal(t, 0.0, r.DomainAffinity[models.DomainStory])
		}},
		{"mixed entity list", `[{"page": 1, "entities": {"characters": ["Ada", 3, null], "locations": "Harbor", "factions": {"x": 1}}}]`, func(t *testing.T, r models.TagRecord) {
			assert.Equal(t, []string{"Ada"}, r.Entities.Characters)
			assert.Equal(t, []string{"Harbor"}, r.Entities.Locations)
			assert.Equal(t, []string{}, r.Entities.Factions)
		}},
		{"garbage falls back to zero", `[{"page": 1, "tags": {"a": 1}, "confidence": "high", "posterCandidate": "maybe", "entities": "none", "domainAffinity": [1]}]`, func(t *testing.T, r models.TagRecord) {
			assert.Equal(t, []string{}, r.Tags)
			assert.Equal(t, 0.0, r.Confidence)
			assert.False(t, r.PosterCandidate)
			assert.Equal(t, []string{}, r.Entities.Characters)
			assert.Len(t, r.DomainAffinity, len(models.Domains))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTagResponse(tt.raw, []int{1})
			require.NoError(t, err)
			require.Len(t, got, 1)
			tt.check(t, got[0])
		})
	}
}

func TestParseTagResponseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "Here are the tags you asked for."},
		{"object", `{"page": 1}`},
		{"broken json", `[{"page": 1,]`},
		{"trailing data", `[{"page": 1}, {"page": 2}] and more`},
		{"too few", `[{"page": 1}]`},
		{"too many", `[{"page": 1}, {"page": 2}, {"page": 3}]`},
		{"duplicate", `[{"page": 1}, {"page": 1}]`},
		{"foreign page", `[{"page": 1}, {"page": 9}]`},
		{"missing page", `[{"page": 1}, {"tags": []}]`},
		{"null page", `[{"page": 1}, {"page": null}]`},
		{"fractional page", `[{"page": 1}, {"page": 2.5}]`},
		{"non-numeric page", `[{"page": 1}, {"page": "two"}]`},
		{"non-object record", `[{"page": 1}, 2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTagResponse(tt.raw, []int{1, 2})
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `[1]`, stripCodeFence("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, stripCodeFence("```\n[1]\n```"))
	assert.Equal(t, `[1]`, stripCodeFence("  ```[1]```  "))
	assert.Equal(t, `[1]`, stripCodeFence("[1]"))
}

func TestTagWithoutGeneratorReturnsPlaceholders(t *testing.T) {
	tagger := NewTagger(nil, nil, NoRetry, 10, 100)
	assert.False(t, tagger.Enabled())
	assert.Equal(t, "", tagger.Model())

	got, err := tagger.Tag(context.Background(), []PageExcerpt{{Page: 2}, {Page: 1}}, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Page)
	for _, rec := range got {
		assert.Equal(t, SkippedNote, rec.Note)
		assert.Empty(t, rec.Tags)
		assert.NotNil(t, rec.Tags)
		assert.Equal(t, 0.0, rec.Confidence)
		for _, d := range models.Domains {
			v, ok := rec.DomainAffinity[d]
			assert.True(t, ok)
			assert.Equal(t, 0.0, v)
		}
	}
}

func TestTagBatchesPromptsAndAppendsRules(t *testing.T) {
	gen := &fakeGenerator{}
	tagger := NewTagger(gen, nil, NoRetry, 3, 5)

	pages := make([]PageExcerpt, 7)
	for i := range pages {
		pages[i] = PageExcerpt{Page: i + 1, Text: "abcdefghij"}
	}
	got, err := tagger.Tag(context.Background(), pages, "Prefer character names.")
	require.NoError(t, err)
	require.Len(t, got, 7)
	for i, rec := range got {
		assert.Equal(t, i+1, rec.Page)
	}

	prompts := gen.Prompts()
	require.Len(t, prompts, 3)
	for _, p := range prompts {
		assert.Contains(t, p, "Prefer character names.")
		assert.Contains(t, p, "abcde\n")
		assert.NotContains(t, p, "abcdef")
	}
	assert.Equal(t, 1, strings.Count(prompts[2], "--- page"))
}

func TestTagRetriesGeneratorFailures(t *testing.T) {
	calls := 0
	gen := &fakeGenerator{}
	gen.respond = func(prompt string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("503 service unavailable")
		}
		return tagAnswer(prompt), nil
	}
	tagger := NewTagger(gen, nil, RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, 10, 100)

	got, err := tagger.Tag(context.Background(), []PageExcerpt{{Page: 1, Text: "x"}}, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, calls)
}

func TestTagDoesNotRetryBadResponses(t *testing.T) {
	calls := 0
	gen := &fakeGenerator{respond: func(string) (string, error) {
		calls++
		return "[]", nil
	}}
	tagger := NewTagger(gen, nil, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, 10, 100)

	_, err := tagger.Tag(context.Background(), []PageExcerpt{{Page: 1, Text: "x"}}, "")
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, 1, calls)
}

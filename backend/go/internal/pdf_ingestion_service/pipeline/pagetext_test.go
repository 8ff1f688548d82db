package pipeline

import (
	"testing"

	"otherly/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestExtractPageText(t *testing.T) {
	text := "Chapter  One\n\nThe  river\tbends.\nÉpilogue près"

	tests := []struct {
		name string
		segs []models.TextSegment
		want string
	}{
		{"no segments", nil, ""},
		{"single segment", []models.TextSegment{{Start: 0, End: 12}}, "Chapter One"},
		{"segments in order", []models.TextSegment{{Start: 0, End: 8}, {Start: 14, End: 31}}, "Chapter The river bends."},
		{"rune offsets", []models.TextSegment{{Start: 32, End: 45}}, "Épilogue près"},
		{"invalid segments skipped", []models.TextSegment{{Start: 5, End: 5}, {Start: 9, End: 3}, {Start: -1, End: 4}, {Start: 40, End: 400}, {Start: 0, End: 7}}, "Chapter"},
		{"whitespace only", []models.TextSegment{{Start: 12, End: 14}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPageText(text, tt.segs))
		})
	}
}

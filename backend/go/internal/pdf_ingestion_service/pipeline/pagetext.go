package pipeline

import (
	"regexp"
	"strings"

	"otherly/backend/go/internal/models"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ExtractPageText rebuilds one page's text from its segments. Offsets are
// rune indices into chunkText, the text of the OCR call that produced them.
// Segments that are empty, reversed or out of bounds are skipped.
func ExtractPageText(chunkText string, segs []models.TextSegment) string {
	if len(segs) == 0 {
		return ""
	}
	runes := []rune(chunkText)
	n := int64(len(runes))

	var b strings.Builder
	for _, s := range segs {
		if s.Start < 0 || s.End <= s.Start || s.End > n {
			continue
		}
		b.WriteString(string(runes[s.Start:s.End]))
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

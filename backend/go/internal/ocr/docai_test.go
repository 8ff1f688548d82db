package ocr

import (
	"errors"
	"testing"

	"otherly/backend/go/internal/models"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func segment(start, end int64) *documentaipb.Document_TextAnchor_TextSegment {
	return &documentaipb.Document_TextAnchor_TextSegment{StartIndex: start, EndIndex: end}
}

func TestConvertDocumentKeepsPageOrderSegmentsAndImages(t *testing.T) {
	doc := &documentaipb.Document{
		Text: "first page\nsecond page",
		Pages: []*documentaipb.Document_Page{
			{
				Layout: &documentaipb.Document_Page_Layout{
					TextAnchor: &documentaipb.Document_TextAnchor{
						TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{segment(0, 10)},
					},
				},
				Image: &documentaipb.Document_Page_Image{
					Content:  []byte{0x89, 'P', 'N', 'G'},
					MimeType: "image/png",
					Width:    1700,
					Height:   2200,
				},
			},
			{
				Layout: &documentaipb.Document_Page_Layout{
					TextAnchor: &documentaipb.Document_TextAnchor{
						TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{segment(11, 17), segment(17, 22)},
					},
				},
			},
			{},
		},
	}

	got := convertDocument(doc)

	assert.Equal(t, "first page\nsecond page", got.FullText)
	assert.Len(t, got.Pages, 3)
	assert.Equal(t, []models.TextSegment{{Start: 0, End: 10}}, got.Pages[0].TextSegments)
	if assert.NotNil(t, got.Pages[0].Image) {
		assert.Equal(t, "image/png", got.Pages[0].Image.MediaType)
		assert.Equal(t, 1700, got.Pages[0].Image.Width)
		assert.Equal(t, 2200, got.Pages[0].Image.Height)
	}
	assert.Equal(t, []models.TextSegment{{Start: 11, End: 17}, {Start: 17, End: 22}}, got.Pages[1].TextSegments)
	assert.Nil(t, got.Pages[1].Image)
	assert.Empty(t, got.Pages[2].TextSegments)
	assert.Nil(t, got.Pages[2].Image)
}

func TestConvertDocumentNil(t *testing.T) {
	got := convertDocument(nil)
	assert.Empty(t, got.FullText)
	assert.Empty(t, got.Pages)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(status.Error(codes.InvalidArgument, "bad pdf")), ErrInvalidDocument)
	assert.False(t, errors.Is(classify(status.Error(codes.Unavailable, "try later")), ErrInvalidDocument))
	assert.False(t, errors.Is(classify(errors.New("dial tcp: timeout")), ErrInvalidDocument))
}

func TestProcessorName(t *testing.T) {
	assert.Equal(t, "projects/p/locations/eu/processors/abc", ProcessorName("p", "eu", "abc"))
}

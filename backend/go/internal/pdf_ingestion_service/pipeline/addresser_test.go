package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressIsDeterministic(t *testing.T) {
	a := ContentAddresser{Root: "otherly"}

	first, err := a.Address("Saga", "https://blob.example.com/bible.pdf", "")
	require.NoError(t, err)
	second, err := a.Address("Saga", "  https://blob.example.com/bible.pdf\n", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first.ID, "ingest-"))
	assert.Len(t, first.ID, len("ingest-")+16)
	assert.Equal(t, "otherly/saga/"+first.ID, first.Prefix)
}

func TestAddressKeepsQueryString(t *testing.T) {
	a := ContentAddresser{Root: "otherly"}

	v1, err := a.Address("p", "https://blob.example.com/bible.pdf?v=1", "")
	require.NoError(t, err)
	v2, err := a.Address("p", "https://blob.example.com/bible.pdf?v=2", "")
	require.NoError(t, err)
	assert.NotEqual(t, v1.ID, v2.ID)
}

func TestAddressOverrideAndDefaults(t *testing.T) {
	a := ContentAddresser{Root: "Otherly"}

	id, err := a.Address("", "https://blob.example.com/bible.pdf", "My Story Bible (v2)")
	require.NoError(t, err)
	assert.Equal(t, "my-story-bible-v2", id.ID)
	assert.Equal(t, "otherly/default/my-story-bible-v2", id.Prefix)

	id, err = a.Address("../../etc", "", "draft")
	require.NoError(t, err)
	assert.Equal(t, "otherly/etc/draft", id.Prefix)
}

func TestAddressRejectsMissingSource(t *testing.T) {
	a := ContentAddresser{Root: "otherly"}

	_, err := a.Address("p", "   ", "")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = a.Address("p", "https://x", "!!!")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestArtifactKeys(t *testing.T) {
	prefix := "otherly/p/ingest-0123456789abcdef"

	assert.Equal(t, prefix+"/pages/page-007.png", PageImageKey(prefix, 7))
	assert.Equal(t, prefix+"/pages/page-123.txt", PageTextKey(prefix, 123))
	assert.Equal(t, prefix+"/fullText.txt", FullTextKey(prefix))
	assert.Equal(t, prefix+"/tags.json", TagsKey(prefix))
	assert.Equal(t, prefix+"/manifest.json", ManifestKey(prefix))
	assert.Equal(t, "renders/x/page-002.png", RenderImageKey("renders/x", 2))
}

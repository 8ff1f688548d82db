package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"

	"otherly/backend/go/internal/models"
)

const (
	// DefaultProjectID scopes ingestions submitted without a project.
	DefaultProjectID = "default"

	idPrefix = "ingest-"
	idHexLen = 16
)

var unsafeKeyChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// SanitizeSegment lower-cases s and reduces it to [a-z0-9._-], collapsing
// runs of other characters to one '-'. Leading and trailing '-' and '.' are dropped.
func SanitizeSegment(s string) string {
	s = unsafeKeyChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-.")
}

// NormalizeProjectID sanitizes projectID, falling back to DefaultProjectID.
func NormalizeProjectID(projectID string) string {
	if p := SanitizeSegment(projectID); p != "" {
		return p
	}
	return DefaultProjectID
}

// ContentAddresser derives the storage identity of an ingestion from its source.
type ContentAddresser struct {
	Root string
}

// CanonicalSourceURL is the form hashed for the ingestion id. The query string is kept.
func CanonicalSourceURL(sourceURL string) string {
	return strings.TrimSpace(sourceURL)
}

// Address returns the same identifier for the same project, source and override.
func (a ContentAddresser) Address(projectID, sourceURL, override string) (models.IngestionIdentifier, error) {
	project := NormalizeProjectID(projectID)

	var id string
	if strings.TrimSpace(override) != "" {
		id = SanitizeSegment(override)
		if id == "" {
			return models.IngestionIdentifier{}, Errorf(KindValidation, "address", "ingestion id %q has no usable characters", override)
		}
	} else {
		canonical := CanonicalSourceURL(sourceURL)
		if canonical == "" {
			return models.IngestionIdentifier{}, Errorf(KindValidation, "address", "source URL is required")
		}
		sum := sha256.Sum256([]byte(canonical))
		id = idPrefix + hex.EncodeToString(sum[:])[:idHexLen]
	}

	root := SanitizeSegment(a.Root)
	return models.IngestionIdentifier{
		ID:     id,
		Prefix: path.Join(root, project, id),
	}, nil
}

// Keys under an ingestion prefix.

func PageImageKey(prefix string, page int) string {
	return fmt.Sprintf("%s/pages/page-%03d.png", prefix, page)
}

func PageTextKey(prefix string, page int) string {
	return fmt.Sprintf("%s/pages/page-%03d.txt", prefix, page)
}

func FullTextKey(prefix string) string { return prefix + "/fullText.txt" }

func TagsKey(prefix string) string { return prefix + "/tags.json" }

func ManifestKey(prefix string) string { return prefix + "/manifest.json" }

// RenderImageKey is the key of a page image produced by a range render.
func RenderImageKey(prefix string, page int) string {
	return fmt.Sprintf("%s/page-%03d.png", prefix, page)
}

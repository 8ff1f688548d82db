package models

// Semantic domains every TagRecord scores.
const (
	DomainOverview   = "OVERVIEW"
	DomainCharacters = "CHARACTERS"
	DomainWorld      = "WORLD"
	DomainLore       = "LORE"
	DomainStyle      = "STYLE"
	DomainStory      = "STORY"
)

// Domains lists the semantic domains in display order.
var Domains = []string{DomainOverview, DomainCharacters, DomainWorld, DomainLore, DomainStyle, DomainStory}

// TagEntities groups the named entities found on a page.
type TagEntities struct {
	Characters []string `json:"characters"`
	Locations  []string `json:"locations"`
	Factions   []string `json:"factions"`
	Objects    []string `json:"objects"`
}

// TagRecord is the tagging result for one page.
type TagRecord struct {
	Page            int                `json:"page"`
	Tags            []string           `json:"tags"`
	Entities        TagEntities        `json:"entities"`
	DomainAffinity  map[string]float64 `json:"domainAffinity"`
	PosterCandidate bool               `json:"posterCandidate"`
	Confidence      float64            `json:"confidence"`
	Note            string             `json:"note,omitempty"`
}

// TagsDocument is the body persisted at {prefix}/tags.json.
type TagsDocument struct {
	IngestionID string      `json:"ingestionId"`
	Model       string      `json:"model,omitempty"`
	Skipped     bool        `json:"skipped"`
	Pages       []TagRecord `json:"pages"`
}

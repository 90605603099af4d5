package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is wrapped by every KnowledgeQuery validation error.
var ErrInvalidQuery = errors.New("invalid query")

// Knowledge search modes.
const (
	SearchModeSemantic = "semantic"
	SearchModeKeyword  = "keyword"
)

// KnowledgeQuery is an administrative lookup against the knowledge base.
type KnowledgeQuery struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// Validate checks the query and fills in defaults. defaultK is used when K is unset.
func (q *KnowledgeQuery) Validate(defaultK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if q.K > 50 {
		q.K = 50
	}
	switch q.Mode {
	case "":
		q.Mode = SearchModeSemantic
	case SearchModeSemantic, SearchModeKeyword:
	default:
		return fmt.Errorf("%w: unknown search mode %q", ErrInvalidQuery, q.Mode)
	}
	return nil
}

// KnowledgeHit is one result of a KnowledgeQuery.
type KnowledgeHit struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source"`
	Title   string  `json:"title,omitempty"`
	Section string  `json:"section,omitempty"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// KnowledgeSearchResponse is the response for a KnowledgeQuery.
type KnowledgeSearchResponse struct {
	Query     string          `json:"query"`
	Mode      string          `json:"mode"`
	Hits      []*KnowledgeHit `json:"hits"`
	QueryTime int64           `json:"query_time_ms"`
}

// Package keyword provides full-text lookup over knowledge chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/otasuke/internal/models"
)

// SearchOptions tunes a keyword search. Nil means defaults.
type SearchOptions struct {
	// HeadingBoost multiplies matches in the chunk's document title or section
	// heading. Values <= 1 disable the extra heading query.
	HeadingBoost float64
	// Fuzziness is the maximum edit distance for each term (0 to 2). Zero means exact terms.
	Fuzziness int
}

// Index is a keyword index of knowledge chunks, keyed by chunk ID.
type Index interface {
	IndexChunks(ctx context.Context, chunks []*models.KnowledgeChunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Result, error)
	DeleteChunks(ctx context.Context, ids []string) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword hit.
type Result struct {
	ID    string
	Score float64
}

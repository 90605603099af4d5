package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/otasuke/internal/models"
)

// chunkDoc is the shape stored in Bleve for each chunk.
type chunkDoc struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Section string `json:"section"`
	Source  string `json:"source"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func chunkMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so "refunds"
	// does not collapse into "refund" and exact policy terms stay exact.
	text.Analyzer = standard.Name
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("section", text)
	doc.AddFieldMappingsAt("source", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("chunk", doc)
	im.DefaultType = "chunk"
	im.DefaultMapping = doc
	return im
}

// NewBleveIndex opens the index at path, creating it when absent. An empty path
// creates an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(chunkMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create keyword index dir: %w", err)
	}
	index, err := bleve.New(path, chunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks adds or replaces chunks in one batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	batch := b.index.NewBatch()
	for _, ch := range chunks {
		doc := chunkDoc{
			Content: ch.Content,
			Title:   strings.ReplaceAll(ch.Title, "_", " "),
			Section: ch.Section,
			Source:  ch.DocumentID,
		}
		if err := batch.Index(ch.ID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", ch.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// DeleteChunks removes chunks by ID.
func (b *BleveIndex) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Search matches query against chunk content, optionally boosting heading matches.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}
	q := matchField(query, "content", o.Fuzziness, 1)
	if o.HeadingBoost > 1 {
		q = bleve.NewDisjunctionQuery(q,
			matchField(query, "title", o.Fuzziness, o.HeadingBoost),
			matchField(query, "section", o.Fuzziness, o.HeadingBoost))
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Result, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func matchField(text, field string, fuzziness int, boost float64) blevequery.Query {
	mq := bleve.NewMatchQuery(text)
	mq.SetField(field)
	if fuzziness > 0 {
		if fuzziness > 2 {
			fuzziness = 2
		}
		mq.SetFuzziness(fuzziness)
	}
	if boost > 1 {
		mq.SetBoost(boost)
	}
	return mq
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

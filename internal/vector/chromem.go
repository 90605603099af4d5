package vector

import (
	"context"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
)

const chromemCollection = "knowledge_chunks"

// ChromemIndex stores vectors in an embedded chromem-go database. With a directory
// the database persists itself on every write, so Save and Load have nothing to do.
type ChromemIndex struct {
	dimensions int
	db         *chromem.DB
	col        *chromem.Collection
}

// NewChromemIndex opens a chromem-go collection. An empty dir keeps everything in memory.
func NewChromemIndex(dimensions int, dir string) (*ChromemIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var (
		db  *chromem.DB
		err error
	)
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, true)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	// Embeddings are always supplied by the caller, so no embedding func is set.
	col, err := db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open chromem collection: %w", err)
	}
	return &ChromemIndex{dimensions: dimensions, db: db, col: col}, nil
}

// Type returns the index type identifier.
func (c *ChromemIndex) Type() string {
	return string(IndexTypeChromem)
}

// Add stores items as chromem documents. Existing IDs are overwritten.
func (c *ChromemIndex) Add(ctx context.Context, items []Item) error {
	for _, it := range items {
		if len(it.Vector) != c.dimensions {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", it.ID, len(it.Vector), c.dimensions)
		}
		vec := make([]float32, len(it.Vector))
		copy(vec, it.Vector)
		doc := chromem.Document{
			ID:        it.ID,
			Embedding: vec,
			Metadata:  map[string]string{"seq": strconv.FormatInt(it.Seq, 10)},
		}
		if err := c.col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add document %s: %w", it.ID, err)
		}
	}
	return nil
}

// Search scores the whole collection so that ties at the k boundary resolve by Seq
// rather than by chromem's internal order.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != c.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), c.dimensions)
	}
	n := c.col.Count()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	q := make([]float32, len(query))
	copy(q, query)
	hits, err := c.col.QueryEmbedding(ctx, q, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		seq, err := strconv.ParseInt(h.Metadata["seq"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("document %s has no sequence: %w", h.ID, err)
		}
		results = append(results, Result{ID: h.ID, Seq: seq, Score: float64(h.Similarity)})
	}
	sortResults(results)
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Remove deletes documents by ID.
func (c *ChromemIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

// Save is a no-op; see ChromemIndex.
func (c *ChromemIndex) Save(path string) error { return nil }

// Load is a no-op; see ChromemIndex.
func (c *ChromemIndex) Load(path string) error { return nil }

// Size returns the number of stored documents.
func (c *ChromemIndex) Size() int {
	return c.col.Count()
}

// Close is a no-op; chromem-go holds no open handles.
func (c *ChromemIndex) Close() error {
	return nil
}

// Package vector provides nearest-neighbour indexes over knowledge chunk embeddings.
package vector

import (
	"context"
	"sort"
)

// Item is one vector to index. Seq is the chunk's insertion sequence from storage and
// orders results whose scores are equal.
type Item struct {
	ID     string
	Seq    int64
	Vector []float32
}

// Result is a single search hit.
type Result struct {
	ID    string
	Seq   int64
	Score float64 // inner product; cosine similarity for normalized vectors
}

// Index stores vectors and answers top-k queries. Search returns hits by descending
// score; equal scores come back in ascending Seq order.
type Index interface {
	Add(ctx context.Context, items []Item) error
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Type() string
	Close() error
}

// sortResults orders results by score, then by insertion sequence.
func sortResults(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		return rs[i].Seq < rs[j].Seq
	})
}

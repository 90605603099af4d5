// Package knowledge answers nearest-neighbour questions against the knowledge base.
// It is shared by every request and keeps no session state.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/otasuke/internal/embedding"
	"github.com/hyperjump/otasuke/internal/keyword"
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/internal/vector"
	"go.uber.org/zap"
)

// ErrRetrievalUnavailable wraps every embedding, index or storage failure seen
// while answering a query, including an expired context.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// DefaultK is the number of chunks returned when a query asks for k <= 0.
const DefaultK = 4

// ChunkStore resolves chunk IDs to stored chunks. Missing IDs are absent from the map.
type ChunkStore interface {
	GetChunks(ctx context.Context, ids []string) (map[string]*models.KnowledgeChunk, error)
}

// Retriever embeds query text, searches the vector index and resolves the hits
// through chunk storage.
type Retriever struct {
	embedder embedding.Embedder
	vectors  vector.Index
	chunks   ChunkStore
	keywords keyword.Index
	view     sync.Locker
	defaultK int
	logger   *zap.Logger
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithDefaultK sets the k used when a query passes k <= 0.
func WithDefaultK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

// WithKeywordIndex enables keyword mode for Search.
func WithKeywordIndex(k keyword.Index) Option {
	return func(r *Retriever) { r.keywords = k }
}

// WithReadLock guards each index lookup and chunk resolution with l, so a lookup
// never sees the knowledge base halfway through a rebuild.
func WithReadLock(l sync.Locker) Option {
	return func(r *Retriever) {
		if l != nil {
			r.view = l
		}
	}
}

// NewRetriever creates a Retriever.
func NewRetriever(emb embedding.Embedder, vectors vector.Index, chunks ChunkStore, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: emb,
		vectors:  vectors,
		chunks:   chunks,
		view:     noLock{},
		defaultK: DefaultK,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRetrievalUnavailable, op, err)
}

// Query returns at most k chunks most similar to text, in descending score order.
// Equal scores keep insertion order. Hits whose chunk is no longer stored are skipped.
func (r *Retriever) Query(ctx context.Context, text string, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		k = r.defaultK
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("query", err)
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, unavailable("embed query", err)
	}
	r.view.Lock()
	defer r.view.Unlock()
	hits, err := r.vectors.Search(ctx, vec, k)
	if err != nil {
		return nil, unavailable("vector search", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("vector search", err)
	}
	if len(hits) == 0 {
		return models.RetrievalResult{}, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := r.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, unavailable("load chunks", err)
	}
	out := make(models.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		ch, ok := chunks[h.ID]
		if !ok {
			r.logger.Debug("vector hit without stored chunk", zap.String("chunk_id", h.ID))
			continue
		}
		out = append(out, models.ScoredChunk{Chunk: ch, Score: h.Score})
	}
	return out, nil
}

package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/otasuke/internal/keyword"
	"github.com/hyperjump/otasuke/internal/models"
)

// ErrKeywordDisabled is returned by Search in keyword mode when no keyword index is configured.
var ErrKeywordDisabled = errors.New("keyword search is not enabled")

// keywordOptions favour chunks whose title or section names the query and forgive
// one typo per term.
var keywordOptions = &keyword.SearchOptions{HeadingBoost: 2, Fuzziness: 1}

// Search runs an administrative lookup. Semantic mode goes through Query; keyword
// mode goes through the keyword index, with scores normalized to [0,1] by the best hit.
func (r *Retriever) Search(ctx context.Context, q *models.KnowledgeQuery) (*models.KnowledgeSearchResponse, error) {
	start := time.Now()
	if err := q.Validate(r.defaultK); err != nil {
		return nil, err
	}

	var scored models.RetrievalResult
	switch q.Mode {
	case models.SearchModeKeyword:
		res, err := r.keywordSearch(ctx, q.Query, q.K)
		if err != nil {
			return nil, err
		}
		scored = res
	default:
		res, err := r.Query(ctx, q.Query, q.K)
		if err != nil {
			return nil, err
		}
		scored = res
	}

	resp := &models.KnowledgeSearchResponse{
		Query: q.Query,
		Mode:  q.Mode,
		Hits:  make([]*models.KnowledgeHit, 0, len(scored)),
	}
	for i, sc := range scored {
		resp.Hits = append(resp.Hits, &models.KnowledgeHit{
			ChunkID: sc.Chunk.ID,
			Source:  sc.Chunk.DocumentID,
			Title:   sc.Chunk.Title,
			Section: sc.Chunk.Section,
			Text:    sc.Chunk.Content,
			Score:   sc.Score,
			Rank:    i + 1,
		})
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

func (r *Retriever) keywordSearch(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	if r.keywords == nil {
		return nil, ErrKeywordDisabled
	}
	r.view.Lock()
	defer r.view.Unlock()
	hits, err := r.keywords.Search(ctx, query, k, keywordOptions)
	if err != nil {
		return nil, unavailable("keyword search", err)
	}
	if len(hits) == 0 {
		return models.RetrievalResult{}, nil
	}
	scores := NormalizeKeywordScores(hits)
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
		if ch, ok := chunks[h.ID]; ok {
			out = append(out, models.ScoredChunk{Chunk: ch, Score: scores[h.ID]})
		}
	}
	return out, nil
}

// NormalizeKeywordScores maps keyword scores to [0,1] by dividing by the maximum.
func NormalizeKeywordScores(results []keyword.Result) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

package models

import "time"

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk *KnowledgeChunk `json:"chunk"`
	Score float64         `json:"score"`
}

// RetrievalResult holds the chunks returned for one query, most similar first.
type RetrievalResult []ScoredChunk

// Sources returns the distinct document ids in order of first appearance.
func (r RetrievalResult) Sources() []string {
	seen := make(map[string]struct{}, len(r))
	out := make([]string, 0, len(r))
	for _, sc := range r {
		if sc.Chunk == nil {
			continue
		}
		if _, ok := seen[sc.Chunk.DocumentID]; ok {
			continue
		}
		seen[sc.Chunk.DocumentID] = struct{}{}
		out = append(out, sc.Chunk.DocumentID)
	}
	return out
}

// AnswerRecord is the result of answering one message.
type AnswerRecord struct {
	Text      string    `json:"text"`
	Citations []string  `json:"citations"`
	SessionID string    `json:"session_id"`
	TurnIndex int       `json:"turn_index"`
	Grounded  bool      `json:"grounded"`
	Timestamp time.Time `json:"timestamp"`
}

// Package models defines the data structures shared by the knowledge base, session memory, and answer pipeline.
package models

import "time"

// Document is a source file or text ingested into the knowledge base.
type Document struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Source    string                 `json:"source"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// KnowledgeChunk is an embedded fragment of a Document.
// Seq is the global insertion order and breaks similarity ties.
type KnowledgeChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"source"`
	Seq        int64     `json:"seq"`
	Content    string    `json:"text"`
	Title      string    `json:"title,omitempty"`
	Section    string    `json:"section,omitempty"`
	ChunkIndex int       `json:"chunk_index"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentInput is the input for adding a document to the knowledge base.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Source   string                 `json:"source,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

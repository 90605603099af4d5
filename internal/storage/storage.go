// Package storage persists knowledge base documents and their embedded chunks.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/otasuke/internal/models"
)

// ErrNotFound is returned when a document or chunk does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document and chunk persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunk operations. BatchCreateChunks assigns each chunk the next Seq.
	BatchCreateChunks(ctx context.Context, chunks []*models.KnowledgeChunk) error
	GetChunk(ctx context.Context, id string) (*models.KnowledgeChunk, error)
	GetChunks(ctx context.Context, ids []string) (map[string]*models.KnowledgeChunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.KnowledgeChunk, error)
	AllChunks(ctx context.Context) ([]*models.KnowledgeChunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	// ReplaceAll atomically replaces every document and chunk, numbering the new
	// chunks from 1 in slice order.
	ReplaceAll(ctx context.Context, docs []*models.Document, chunks []*models.KnowledgeChunk) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}

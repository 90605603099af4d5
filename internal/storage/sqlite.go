package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/otasuke/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		source TEXT,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		seq INTEGER NOT NULL UNIQUE,
		content TEXT NOT NULL,
		title TEXT,
		section TEXT,
		chunk_index INTEGER NOT NULL,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	return insertDocument(ctx, s.db, doc, time.Now())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertDocument(ctx context.Context, db execer, doc *models.Document, now time.Time) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err = db.ExecContext(ctx,
		`INSERT INTO documents (id, title, source, content, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Source, doc.Content, string(metadataJSON), doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, source, content, metadata, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var title, source, metadataJSON sql.NullString
	if err := row.Scan(&doc.ID, &title, &source, &doc.Content, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Title = title.String
	doc.Source = source.String
	if metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// DeleteDocument removes a document by ID. Its chunks are removed separately.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns documents ordered by title with offset and limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, source, content, metadata, created_at, updated_at
		 FROM documents ORDER BY title, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const chunkColumns = `id, document_id, seq, content, title, section, chunk_index, embedding, created_at`

func scanChunk(row scanner) (*models.KnowledgeChunk, error) {
	var ch models.KnowledgeChunk
	var title, section sql.NullString
	var blob []byte
	if err := row.Scan(&ch.ID, &ch.DocumentID, &ch.Seq, &ch.Content, &title, &section, &ch.ChunkIndex, &blob, &ch.CreatedAt); err != nil {
		return nil, err
	}
	ch.Title = title.String
	ch.Section = section.String
	ch.Embedding = decodeEmbedding(blob)
	return &ch, nil
}

// BatchCreateChunks inserts chunks in one transaction, numbering them after the
// highest existing seq in slice order. Seq values are written back to the chunks.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM chunks`).Scan(&maxSeq); err != nil {
		return fmt.Errorf("read chunk sequence: %w", err)
	}
	now := time.Now()
	seqs, err := insertChunks(ctx, tx, chunks, maxSeq.Int64+1, now)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	setChunkSeqs(chunks, seqs, now)
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []*models.KnowledgeChunk, next int64, now time.Time) ([]int64, error) {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	seqs := make([]int64, len(chunks))
	for i, ch := range chunks {
		seqs[i] = next
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.DocumentID, next, ch.Content, ch.Title, ch.Section,
			ch.ChunkIndex, encodeEmbedding(ch.Embedding), now); err != nil {
			return nil, fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
		next++
	}
	return seqs, nil
}

func setChunkSeqs(chunks []*models.KnowledgeChunk, seqs []int64, now time.Time) {
	for i, ch := range chunks {
		ch.Seq = seqs[i]
		ch.CreatedAt = now
	}
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.KnowledgeChunk, error) {
	ch, err := scanChunk(s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	return ch, err
}

// GetChunks returns the chunks with the given IDs keyed by ID. Missing IDs are absent from the map.
func (s *SQLiteStorage) GetChunks(ctx context.Context, ids []string) (map[string]*models.KnowledgeChunk, error) {
	out := make(map[string]*models.KnowledgeChunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out[ch.ID] = ch
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) queryChunks(ctx context.Context, query string, args ...interface{}) ([]*models.KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []*models.KnowledgeChunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.KnowledgeChunk, error) {
	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
}

// AllChunks returns every chunk ordered by seq.
func (s *SQLiteStorage) AllChunks(ctx context.Context) ([]*models.KnowledgeChunk, error) {
	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM chunks ORDER BY seq`)
}

// DeleteChunksByDocumentID removes all chunks for a document.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID)
	return err
}

// ReplaceAll swaps the whole knowledge base for docs and chunks in one transaction.
// Chunks are numbered from 1 in slice order. On error the previous contents remain.
func (s *SQLiteStorage) ReplaceAll(ctx context.Context, docs []*models.Document, chunks []*models.KnowledgeChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{`DELETE FROM chunks`, `DELETE FROM documents`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	now := time.Now()
	for _, doc := range docs {
		if err := insertDocument(ctx, tx, doc, now); err != nil {
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
	}
	seqs, err := insertChunks(ctx, tx, chunks, 1, now)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	setChunkSeqs(chunks, seqs, now)
	return nil
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

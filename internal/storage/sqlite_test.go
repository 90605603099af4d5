package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/otasuke/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorage_Documents(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := &models.Document{
		ID:       "doc1",
		Title:    "shipping_policy.md",
		Source:   "/kb/shipping_policy.md",
		Content:  "Standard shipping takes 3-5 days.",
		Metadata: map[string]interface{}{"k": "v"},
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if err := store.CreateDocument(ctx, doc); err == nil {
		t.Error("expected error for duplicate document id")
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != doc.Title || got.Source != doc.Source || got.Metadata["k"] != "v" {
		t.Errorf("got %+v", got)
	}

	list, err := store.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 doc, got %d", len(list))
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, "doc1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func chunksFor(docID string, n int) []*models.KnowledgeChunk {
	out := make([]*models.KnowledgeChunk, n)
	for i := range out {
		out[i] = &models.KnowledgeChunk{
			ID:         fmt.Sprintf("%s_%d", docID, i),
			DocumentID: docID,
			Content:    fmt.Sprintf("chunk %d of %s", i, docID),
			Section:    "Intro",
			ChunkIndex: i,
			Embedding:  []float32{float32(i), 0.5, -1},
		}
	}
	return out
}

func TestSQLiteStorage_ChunkSequence(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := chunksFor("a", 3)
	if err := store.BatchCreateChunks(ctx, first); err != nil {
		t.Fatal(err)
	}
	for i, ch := range first {
		if ch.Seq != int64(i+1) {
			t.Errorf("chunk %d seq=%d, want %d", i, ch.Seq, i+1)
		}
	}
	second := chunksFor("b", 2)
	if err := store.BatchCreateChunks(ctx, second); err != nil {
		t.Fatal(err)
	}
	if second[0].Seq != 4 || second[1].Seq != 5 {
		t.Errorf("second batch seqs = %d,%d, want 4,5", second[0].Seq, second[1].Seq)
	}

	// Deleting the oldest chunks must not let seq values repeat.
	if err := store.DeleteChunksByDocumentID(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	third := chunksFor("c", 1)
	if err := store.BatchCreateChunks(ctx, third); err != nil {
		t.Fatal(err)
	}
	if third[0].Seq != 6 {
		t.Errorf("third batch seq=%d, want 6", third[0].Seq)
	}

	all, err := store.AllChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, ch := range all {
		ids = append(ids, ch.ID)
	}
	if fmt.Sprint(ids) != "[b_0 b_1 c_0]" {
		t.Errorf("AllChunks order = %v", ids)
	}
}

func TestSQLiteStorage_GetChunks(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	if err := store.BatchCreateChunks(ctx, chunksFor("doc", 3)); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetChunks(ctx, []string{"doc_2", "missing", "doc_0"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	ch := got["doc_2"]
	if ch == nil || ch.Content != "chunk 2 of doc" || ch.Section != "Intro" || ch.ChunkIndex != 2 {
		t.Errorf("unexpected chunk: %+v", ch)
	}
	if len(ch.Embedding) != 3 || ch.Embedding[0] != 2 || ch.Embedding[2] != -1 {
		t.Errorf("embedding not round-tripped: %v", ch.Embedding)
	}

	empty, err := store.GetChunks(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetChunks(nil) = %v, %v", empty, err)
	}

	if _, err := store.GetChunk(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	byDoc, err := store.GetChunksByDocumentID(ctx, "doc")
	if err != nil || len(byDoc) != 3 || byDoc[0].ChunkIndex != 0 {
		t.Errorf("GetChunksByDocumentID = %v, %v", byDoc, err)
	}
}

func TestSQLiteStorage_CountsAndClear(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.CreateDocument(ctx, &models.Document{ID: "d", Content: "x"})
	_ = store.BatchCreateChunks(ctx, chunksFor("d", 2))

	docs, _ := store.CountDocuments(ctx)
	chunks, _ := store.CountChunks(ctx)
	if docs != 1 || chunks != 2 {
		t.Errorf("counts = %d docs, %d chunks", docs, chunks)
	}

	if err := store.ReplaceAll(ctx, nil, nil); err != nil {
		t.Fatal(err)
	}
	docs, _ = store.CountDocuments(ctx)
	chunks, _ = store.CountChunks(ctx)
	if docs != 0 || chunks != 0 {
		t.Errorf("after clearing: %d docs, %d chunks", docs, chunks)
	}
}

func TestSQLiteStorage_ReplaceAll(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.CreateDocument(ctx, &models.Document{ID: "old", Content: "x"})
	_ = store.BatchCreateChunks(ctx, chunksFor("old", 3))

	docs := []*models.Document{{ID: "a", Content: "a"}, {ID: "b", Content: "b"}}
	chunks := append(chunksFor("a", 2), chunksFor("b", 1)...)
	if err := store.ReplaceAll(ctx, docs, chunks); err != nil {
		t.Fatal(err)
	}
	for i, ch := range chunks {
		if ch.Seq != int64(i+1) {
			t.Errorf("chunk %s seq = %d, want %d", ch.ID, ch.Seq, i+1)
		}
	}
	if _, err := store.GetDocument(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old document should be gone, got %v", err)
	}
	n, _ := store.CountChunks(ctx)
	if n != 3 {
		t.Errorf("chunks = %d, want 3", n)
	}

	// A duplicate chunk ID fails the insert; the previous contents must survive.
	bad := append(chunksFor("c", 1), chunksFor("c", 1)...)
	if err := store.ReplaceAll(ctx, []*models.Document{{ID: "c", Content: "c"}}, bad); err == nil {
		t.Fatal("expected duplicate chunk error")
	}
	n, _ = store.CountChunks(ctx)
	if n != 3 {
		t.Errorf("after failed replace: %d chunks, want 3", n)
	}
	if _, err := store.GetDocument(ctx, "a"); err != nil {
		t.Errorf("document a should survive a failed replace: %v", err)
	}
}

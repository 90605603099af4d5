package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/otasuke/internal/embedding"
	"github.com/hyperjump/otasuke/internal/extract"
	"github.com/hyperjump/otasuke/internal/fileid"
	"github.com/hyperjump/otasuke/internal/keyword"
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/internal/storage"
	"github.com/hyperjump/otasuke/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
	metaKeyFileType    = "file_type"
)

// Indexer writes documents into storage, the vector index and the keyword index.
// Writes are serialized so chunk sequence numbers follow the order documents are
// indexed in. Readers holding ReadLocker never observe a half-applied write.
type Indexer struct {
	storage   storage.Storage
	embedder  embedding.Embedder
	vectors   vector.Index
	keywords  keyword.Index
	chunker   *Chunker
	extractor *extract.Extractor
	root      string
	exts      []string
	workers   int
	logger    *zap.Logger

	mu   sync.Mutex   // serializes writers
	view sync.RWMutex // held for writing only while indexes change
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex keeps a keyword index in step with storage.
func WithKeywordIndex(k keyword.Index) Option {
	return func(idx *Indexer) { idx.keywords = k }
}

// WithChunking sets chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(idx *Indexer) { idx.chunker = NewChunker(size, overlap) }
}

// WithExtensions limits which files are indexed. Extensions without a registered
// extractor are ignored.
func WithExtensions(exts []string) Option {
	return func(idx *Indexer) { idx.exts = exts }
}

// WithWorkers bounds concurrent extraction during Rebuild.
func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// New creates an Indexer. root is the knowledge base directory; file document IDs are
// paths relative to it.
func New(store storage.Storage, emb embedding.Embedder, vectors vector.Index, root string, opts ...Option) *Indexer {
	idx := &Indexer{
		storage:   store,
		embedder:  emb,
		vectors:   vectors,
		chunker:   NewChunker(1000, 200),
		extractor: extract.NewExtractor(),
		root:      root,
		workers:   4,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.root != "" {
		if abs, err := filepath.Abs(idx.root); err == nil {
			idx.root = abs
		}
	}
	return idx
}

// Root returns the knowledge base directory.
func (idx *Indexer) Root() string {
	return idx.root
}

// ReadLocker returns the lock readers take around a lookup that spans the vector
// index and storage.
func (idx *Indexer) ReadLocker() sync.Locker {
	return idx.view.RLocker()
}

// Report summarizes a directory pass.
type Report struct {
	Files     int      `json:"files"`
	Indexed   int      `json:"indexed"`
	Unchanged int      `json:"unchanged"`
	Removed   int      `json:"removed"`
	Failed    int      `json:"failed"`
	Chunks    int      `json:"chunks"`
	Errors    []string `json:"errors,omitempty"`
}

func (r *Report) fail(path string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", path, err))
}

// IndexDocument stores, chunks, embeds and indexes a document, replacing any
// existing document with the same ID. It returns the stored chunks.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) ([]*models.KnowledgeChunk, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.indexDocumentLocked(ctx, input)
}

func (idx *Indexer) indexDocumentLocked(ctx context.Context, input *models.DocumentInput) ([]*models.KnowledgeChunk, error) {
	doc, chunks, err := idx.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	idx.view.Lock()
	defer idx.view.Unlock()
	if err := idx.deleteDocumentLocked(ctx, doc.ID); err != nil {
		return nil, err
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if err := idx.storage.BatchCreateChunks(ctx, chunks); err != nil {
		_ = idx.storage.DeleteDocument(ctx, doc.ID)
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := idx.addToIndexes(ctx, chunks); err != nil {
		return nil, err
	}
	idx.logger.Debug("document indexed", zap.String("doc_id", doc.ID), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// prepare cleans, chunks and embeds a document without touching any index.
func (idx *Indexer) prepare(ctx context.Context, input *models.DocumentInput) (*models.Document, []*models.KnowledgeChunk, error) {
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	content := Preprocess(input.Content)
	if content == "" {
		return nil, nil, fmt.Errorf("document %s has no text", input.ID)
	}
	doc := &models.Document{
		ID:       input.ID,
		Title:    input.Title,
		Source:   input.Source,
		Content:  content,
		Metadata: input.Metadata,
	}
	chunks := idx.chunker.Chunk(doc.ID, doc.Title, doc.Content)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, nil, fmt.Errorf("embedder returned %d embeddings for %d chunks", len(embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}
	return doc, chunks, nil
}

func (idx *Indexer) addToIndexes(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	if err := idx.vectors.Add(ctx, vectorItems(chunks)); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	if idx.keywords != nil {
		if err := idx.keywords.IndexChunks(ctx, chunks); err != nil {
			return fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	return nil
}

func (idx *Indexer) removeFromIndexes(ctx context.Context, ids []string) error {
	if err := idx.vectors.Remove(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if idx.keywords != nil {
		if err := idx.keywords.DeleteChunks(ctx, ids); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	return nil
}

func vectorItems(chunks []*models.KnowledgeChunk) []vector.Item {
	items := make([]vector.Item, len(chunks))
	for i, ch := range chunks {
		items[i] = vector.Item{ID: ch.ID, Seq: ch.Seq, Vector: ch.Embedding}
	}
	return items
}

// DeleteDocument removes a document and its chunks from every index. Unknown IDs are a no-op.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.view.Lock()
	defer idx.view.Unlock()
	return idx.deleteDocumentLocked(ctx, id)
}

func (idx *Indexer) deleteDocumentLocked(ctx context.Context, id string) error {
	chunks, err := idx.storage.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	if err := idx.removeFromIndexes(ctx, ids); err != nil {
		return err
	}
	if err := idx.storage.DeleteChunksByDocumentID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if len(ids) > 0 {
		idx.logger.Debug("document deleted", zap.String("doc_id", id), zap.Int("chunks", len(ids)))
	}
	return nil
}

// IndexFile extracts and indexes one file. It reports false without error when the
// file is already indexed with the same modification time and size.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (bool, error) {
	absPath, info, err := idx.checkFile(path)
	if err != nil {
		return false, err
	}
	docID := fileid.DocID(idx.root, absPath)
	if idx.unchanged(ctx, docID, absPath, info) {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return false, nil
	}
	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return false, fmt.Errorf("extract content: %w", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, err := idx.indexDocumentLocked(ctx, fileInput(docID, absPath, info, text)); err != nil {
		return false, err
	}
	return true, nil
}

func (idx *Indexer) checkFile(path string) (string, os.FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", nil, fmt.Errorf("absolute path: %w", err)
	}
	if !idx.allowed(absPath) {
		return "", nil, fmt.Errorf("file type %q is not indexed", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	return absPath, info, nil
}

func fileInput(docID, absPath string, info os.FileInfo, text string) *models.DocumentInput {
	return &models.DocumentInput{
		ID:      docID,
		Title:   filepath.Base(absPath),
		Source:  absPath,
		Content: text,
		Metadata: map[string]interface{}{
			metaKeySourcePath: absPath,
			// Strings, since UnixNano exceeds float64 precision after a JSON round trip.
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
			metaKeyFileType:    strings.ToLower(filepath.Ext(absPath)),
		},
	}
}

func (idx *Indexer) unchanged(ctx context.Context, docID, absPath string, info os.FileInfo) bool {
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.Metadata == nil {
		return false
	}
	return doc.Metadata[metaKeySourcePath] == absPath &&
		metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (idx *Indexer) allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !idx.extractor.Supported(ext) || ext == "" {
		return false
	}
	if len(idx.exts) == 0 {
		return true
	}
	for _, e := range idx.exts {
		if strings.TrimPrefix(strings.ToLower(e), ".") == strings.TrimPrefix(ext, ".") {
			return true
		}
	}
	return false
}

// files lists indexable regular files under dir in lexical walk order.
func (idx *Indexer) files(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !idx.allowed(path) {
			return nil
		}
		// Follow symlinks, but only to regular files.
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func (idx *Indexer) resolveDir(dir string) (string, error) {
	if dir == "" {
		dir = idx.root
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// IndexDirectory indexes every supported file under dir, skipping unchanged ones.
// A file that fails is recorded in the report and does not stop the pass.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (Report, error) {
	var r Report
	abs, err := idx.resolveDir(dir)
	if err != nil {
		return r, err
	}
	paths, err := idx.files(abs)
	if err != nil {
		return r, err
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		r.Files++
		indexed, err := idx.IndexFile(ctx, path)
		switch {
		case err != nil:
			idx.logger.Warn("failed to index file", zap.String("path", path), zap.Error(err))
			r.fail(path, err)
		case indexed:
			r.Indexed++
		default:
			r.Unchanged++
		}
	}
	return r, nil
}

// Update brings the knowledge base in line with dir: new and modified files are
// indexed and documents whose file is gone are removed.
func (idx *Indexer) Update(ctx context.Context, dir string) (Report, error) {
	r, err := idx.IndexDirectory(ctx, dir)
	if err != nil {
		return r, err
	}
	removed, err := idx.pruneMissing(ctx)
	r.Removed = removed
	if err != nil {
		return r, err
	}
	r.Chunks, err = idx.chunkCount(ctx)
	return r, err
}

func (idx *Indexer) chunkCount(ctx context.Context) (int, error) {
	n, err := idx.storage.CountChunks(ctx)
	return int(n), err
}

func (idx *Indexer) pruneMissing(ctx context.Context) (int, error) {
	const page = 500
	var gone []string
	for offset := 0; ; offset += page {
		docs, err := idx.storage.ListDocuments(ctx, offset, page)
		if err != nil {
			return 0, err
		}
		for _, doc := range docs {
			src, _ := doc.Metadata[metaKeySourcePath].(string)
			if src == "" {
				continue
			}
			if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
				gone = append(gone, doc.ID)
			}
		}
		if len(docs) < page {
			break
		}
	}
	for _, id := range gone {
		if err := idx.DeleteDocument(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(gone), nil
}

type extracted struct {
	path string
	info os.FileInfo
	text string
	err  error
}

// Rebuild re-indexes dir from scratch. Files are extracted concurrently, then chunked
// and embedded in walk order into a staged set so chunk sequence numbers are the same
// on every rebuild of the same tree. The staged set replaces the knowledge base in
// one step; until then, and whenever the rebuild fails or ctx is cancelled, readers
// keep the previous knowledge base.
func (idx *Indexer) Rebuild(ctx context.Context, dir string) (Report, error) {
	var r Report
	abs, err := idx.resolveDir(dir)
	if err != nil {
		return r, err
	}
	paths, err := idx.files(abs)
	if err != nil {
		return r, err
	}

	results := make([]extracted, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := extracted{path: path}
			res.info, res.err = os.Stat(path)
			if res.err == nil {
				res.text, res.err = idx.extractor.Extract(path)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return r, err
	}

	var (
		docs   []*models.Document
		chunks []*models.KnowledgeChunk
	)
	for _, res := range results {
		r.Files++
		if res.err != nil {
			r.fail(res.path, res.err)
			continue
		}
		docID := fileid.DocID(idx.root, res.path)
		doc, docChunks, err := idx.prepare(ctx, fileInput(docID, res.path, res.info, res.text))
		if err != nil {
			if ctx.Err() != nil {
				return r, ctx.Err()
			}
			idx.logger.Warn("failed to index file", zap.String("path", res.path), zap.Error(err))
			r.fail(res.path, err)
			continue
		}
		docs = append(docs, doc)
		chunks = append(chunks, docChunks...)
		r.Indexed++
	}
	if err := ctx.Err(); err != nil {
		return r, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	// Past this point the swap runs to completion even if the caller goes away.
	if err := idx.swapLocked(context.WithoutCancel(ctx), docs, chunks); err != nil {
		return r, err
	}
	r.Chunks = len(chunks)
	idx.logger.Info("knowledge base rebuilt",
		zap.String("dir", abs), zap.Int("files", r.Files), zap.Int("chunks", r.Chunks), zap.Int("failed", r.Failed))
	return r, nil
}

// swapLocked replaces storage and both indexes with docs and chunks while readers
// are held off.
func (idx *Indexer) swapLocked(ctx context.Context, docs []*models.Document, chunks []*models.KnowledgeChunk) error {
	old, err := idx.storage.AllChunks(ctx)
	if err != nil {
		return err
	}
	oldIDs := make([]string, len(old))
	for i, ch := range old {
		oldIDs[i] = ch.ID
	}

	idx.view.Lock()
	defer idx.view.Unlock()
	if err := idx.storage.ReplaceAll(ctx, docs, chunks); err != nil {
		return fmt.Errorf("replace knowledge base: %w", err)
	}
	if err := idx.removeFromIndexes(ctx, oldIDs); err != nil {
		return err
	}
	return idx.addToIndexes(ctx, chunks)
}

// Restore reloads the vector and keyword indexes from stored chunk embeddings when
// the vector index is empty, e.g. after a restart without a saved index file.
func (idx *Indexer) Restore(ctx context.Context) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.view.Lock()
	defer idx.view.Unlock()
	if idx.vectors.Size() > 0 {
		return 0, nil
	}
	chunks, err := idx.storage.AllChunks(ctx)
	if err != nil {
		return 0, err
	}
	var usable []*models.KnowledgeChunk
	for _, ch := range chunks {
		if len(ch.Embedding) == idx.embedder.Dimensions() {
			usable = append(usable, ch)
		}
	}
	if len(usable) == 0 {
		return 0, nil
	}
	if err := idx.addToIndexes(ctx, usable); err != nil {
		return 0, err
	}
	return len(usable), nil
}

// Reindex indexes the file at path. It lets the Indexer serve as a watcher.Handler.
func (idx *Indexer) Reindex(ctx context.Context, path string) error {
	_, err := idx.IndexFile(ctx, path)
	return err
}

// Remove deletes the document read from path.
func (idx *Indexer) Remove(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return idx.DeleteDocument(ctx, fileid.DocID(idx.root, abs))
}

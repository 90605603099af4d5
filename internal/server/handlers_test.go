package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/otasuke/internal/chat"
	"github.com/hyperjump/otasuke/internal/config"
	"github.com/hyperjump/otasuke/internal/embedding"
	"github.com/hyperjump/otasuke/internal/indexer"
	"github.com/hyperjump/otasuke/internal/keyword"
	"github.com/hyperjump/otasuke/internal/knowledge"
	"github.com/hyperjump/otasuke/internal/llm"
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/internal/session"
	"github.com/hyperjump/otasuke/internal/storage"
	"github.com/hyperjump/otasuke/internal/vector"
	"go.uber.org/zap"
)

type stubGenerator struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.text, g.err
}

type testServer struct {
	srv     *Server
	handler http.Handler
	gen     *stubGenerator
	store   *storage.SQLiteStorage
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "knowledge.db")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors", "index.bin")
	cfg.Storage.KeywordIndexPath = filepath.Join(dir, "keyword")
	cfg.Knowledge.Path = filepath.Join(dir, "kb")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 8
	if mutate != nil {
		mutate(cfg)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	emb := embedding.NewMockEmbedder(8)
	vecIdx, err := vector.NewMemoryIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	kwIdx, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kwIdx.Close() })

	idx := indexer.New(store, emb, vecIdx, cfg.Knowledge.Path,
		indexer.WithKeywordIndex(kwIdx), indexer.WithChunking(200, 20))
	if _, err := idx.IndexDocument(context.Background(), &models.DocumentInput{
		ID:      "hours",
		Title:   "Hours",
		Content: "Our business hours are Monday to Friday, 9 AM to 5 PM.",
	}); err != nil {
		t.Fatal(err)
	}
	retriever := knowledge.NewRetriever(emb, vecIdx, store,
		knowledge.WithKeywordIndex(kwIdx), knowledge.WithReadLock(idx.ReadLocker()))
	sessions := session.New(session.WithMaxTurns(cfg.Session.MaxTurns))
	t.Cleanup(func() { sessions.Close() })

	gen := &stubGenerator{text: "We are open Monday to Friday, 9 AM to 5 PM."}
	pipeline := chat.NewPipeline(sessions, retriever, gen, chat.ConfigOptions(cfg)...)
	srv := NewServer(Deps{
		Pipeline: pipeline,
		Sessions: sessions,
		Searcher: retriever,
		Indexer:  idx,
		Storage:  store,
		Vectors:  vecIdx,
	}, cfg, "test", zap.NewNop())
	t.Cleanup(func() { srv.Stop(context.Background()) })
	return &testServer{srv: srv, handler: srv.Router(), gen: gen, store: store}
}

func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHandleChat(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodPost, "/chat", map[string]string{"message": "What are your hours?", "session_id": "s1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out chatResponse
	decode(t, w, &out)
	if out.SessionID != "s1" || out.TurnIndex != 1 || !out.Grounded {
		t.Errorf("unexpected response: %+v", out)
	}
	if out.Response != ts.gen.text || out.Text != out.Response {
		t.Errorf("response text: got %q", out.Response)
	}
	if len(out.Citations) != 1 || out.Citations[0] != "hours" {
		t.Errorf("citations: got %v", out.Citations)
	}
	if len(out.Sources) != 1 || out.Sources[0] != "hours" {
		t.Errorf("sources: got %v", out.Sources)
	}
}

func TestHandleChat_generatesSessionID(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodPost, "/chat", map[string]string{"message": "hello", "user_id": "u1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out chatResponse
	decode(t, w, &out)
	if out.SessionID == "" || out.TurnIndex != 1 {
		t.Errorf("unexpected response: %+v", out)
	}
}

func TestHandleChat_errors(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"malformed body", "{not json", http.StatusBadRequest},
		{"empty message", map[string]string{"message": "  ", "session_id": "s1"}, http.StatusBadRequest},
		{"message too long", map[string]string{"message": string(bytes.Repeat([]byte("a"), 2001)), "session_id": "s1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			w := ts.do(http.MethodPost, "/chat", tt.body)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
			if ts.gen.calls != 0 {
				t.Errorf("generator called %d times for invalid input", ts.gen.calls)
			}
		})
	}
}

func TestHandleChat_generationFailureLeavesHistoryEmpty(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.gen.err = errors.New("upstream down")
	w := ts.do(http.MethodPost, "/chat", map[string]string{"message": "hi", "session_id": "s1"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", w.Code)
	}
	if ts.gen.calls != 2 {
		t.Errorf("expected one retry, got %d calls", ts.gen.calls)
	}
	w = ts.do(http.MethodGet, "/conversation/s1", nil)
	var out struct {
		Messages []models.Turn `json:"messages"`
	}
	decode(t, w, &out)
	if len(out.Messages) != 0 {
		t.Errorf("history should be empty, got %d turns", len(out.Messages))
	}
}

func TestConversationHistoryAndClear(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodPost, "/chat", map[string]string{"message": "What are your hours?", "session_id": "s1"})

	w := ts.do(http.MethodGet, "/conversation/s1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var hist struct {
		SessionID string        `json:"session_id"`
		Messages  []models.Turn `json:"messages"`
	}
	decode(t, w, &hist)
	if hist.SessionID != "s1" || len(hist.Messages) != 2 {
		t.Fatalf("unexpected history: %+v", hist)
	}
	if hist.Messages[0].Role != models.RoleUser || hist.Messages[1].Role != models.RoleAssistant {
		t.Errorf("roles out of order: %+v", hist.Messages)
	}

	w = ts.do(http.MethodGet, "/api/v1/sessions", nil)
	var sess struct {
		Sessions []string `json:"sessions"`
	}
	decode(t, w, &sess)
	if len(sess.Sessions) != 1 || sess.Sessions[0] != "s1" {
		t.Errorf("sessions: got %v", sess.Sessions)
	}

	if w := ts.do(http.MethodDelete, "/conversation/s1", nil); w.Code != http.StatusOK {
		t.Errorf("first clear: got %d", w.Code)
	}
	if w := ts.do(http.MethodDelete, "/conversation/s1", nil); w.Code != http.StatusNotFound {
		t.Errorf("second clear: got %d, want 404", w.Code)
	}
}

func TestHandleHealth_skipsAuth(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.RequireAPIKey = true
		cfg.Auth.APIKeys = []string{"secret"}
	})
	w := ts.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	decode(t, w, &out)
	if out["status"] != "healthy" || out["version"] != "test" {
		t.Errorf("unexpected body: %v", out)
	}
	if w := ts.do(http.MethodPost, "/chat", map[string]string{"message": "hi"}); w.Code != http.StatusUnauthorized {
		t.Errorf("chat without key: got %d, want 401", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodPost, "/chat", map[string]string{"message": "hi", "session_id": "s1"})
	w := ts.do(http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	decode(t, w, &out)
	if out["documents"] != float64(1) || out["chunks"] != float64(1) || out["vector_index_size"] != float64(1) {
		t.Errorf("counts: %v", out)
	}
	if out["sessions"] != float64(1) || out["turns"] != float64(2) {
		t.Errorf("session stats: %v", out)
	}
	if _, ok := out["disk_usage_bytes"]; !ok {
		t.Error("expected disk_usage_bytes")
	}
}

func TestHandleKnowledgeSearch(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodPost, "/api/v1/knowledge/search", models.KnowledgeQuery{Query: "business hours"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out models.KnowledgeSearchResponse
	decode(t, w, &out)
	if out.Mode != models.SearchModeSemantic || len(out.Hits) != 1 || out.Hits[0].Source != "hours" {
		t.Errorf("unexpected response: %+v", out)
	}

	w = ts.do(http.MethodPost, "/api/v1/knowledge/search", models.KnowledgeQuery{Query: "hours", Mode: "keyword"})
	if w.Code != http.StatusOK {
		t.Fatalf("keyword status: got %d", w.Code)
	}

	w = ts.do(http.MethodPost, "/api/v1/knowledge/search", models.KnowledgeQuery{Query: "hours", Mode: "fuzzy"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown mode: got %d, want 400", w.Code)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodPost, "/api/v1/documents", models.DocumentInput{
		ID:      "returns",
		Title:   "Returns",
		Content: "Items can be returned within 30 days of purchase.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d, body: %s", w.Code, w.Body.String())
	}

	w = ts.do(http.MethodGet, "/api/v1/documents/returns", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: got %d", w.Code)
	}
	var doc models.Document
	decode(t, w, &doc)
	if doc.Title != "Returns" {
		t.Errorf("title: got %q", doc.Title)
	}

	if w := ts.do(http.MethodDelete, "/api/v1/documents/returns", nil); w.Code != http.StatusOK {
		t.Errorf("delete: got %d", w.Code)
	}
	if w := ts.do(http.MethodGet, "/api/v1/documents/returns", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", w.Code)
	}
	if w := ts.do(http.MethodPost, "/api/v1/documents", models.DocumentInput{Content: "   "}); w.Code != http.StatusBadRequest {
		t.Errorf("empty document: got %d, want 400", w.Code)
	}
}

func TestHandleKnowledgeRebuild(t *testing.T) {
	ts := newTestServer(t, nil)
	if _, err := ts.srv.deps.Indexer.(*indexer.Indexer).SeedSamples(""); err != nil {
		t.Fatal(err)
	}
	w := ts.do(http.MethodPost, "/api/v1/knowledge/rebuild", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var report indexer.Report
	decode(t, w, &report)
	if report.Indexed != len(indexer.SampleNames()) {
		t.Errorf("indexed: got %d", report.Indexed)
	}
	// The rebuild replaces the document indexed by hand.
	if _, err := ts.store.GetDocument(context.Background(), "hours"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected hours to be cleared, got %v", err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: empty", chat.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: empty", models.ErrInvalidQuery), http.StatusBadRequest},
		{fmt.Errorf("%w: timeout", chat.ErrGenerationFailed), http.StatusBadGateway},
		{knowledge.ErrKeywordDisabled, http.StatusNotImplemented},
		{fmt.Errorf("%w: embed: down", knowledge.ErrRetrievalUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

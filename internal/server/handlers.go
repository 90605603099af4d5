package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hyperjump/otasuke/internal/chat"
	"github.com/hyperjump/otasuke/internal/knowledge"
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/internal/storage"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type chatRequest struct {
	Message   string                 `json:"message"`
	SessionID string                 `json:"session_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type chatResponse struct {
	Response  string    `json:"response"`
	Text      string    `json:"text"`
	SessionID string    `json:"session_id"`
	TurnIndex int       `json:"turn_index"`
	Citations []string  `json:"citations"`
	Sources   []string  `json:"sources"`
	Grounded  bool      `json:"grounded"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	metadata := req.Metadata
	if req.UserID != "" {
		if metadata == nil {
			metadata = make(map[string]interface{})
		}
		metadata["user_id"] = req.UserID
	}
	s.logger.Debug("chat request", zap.String("session_id", req.SessionID))

	rec, err := s.deps.Pipeline.Answer(r.Context(), chat.Request{
		SessionID: req.SessionID,
		Message:   req.Message,
		Metadata:  metadata,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{
		Response:  rec.Text,
		Text:      rec.Text,
		SessionID: rec.SessionID,
		TurnIndex: rec.TurnIndex,
		Citations: rec.Citations,
		Sources:   rec.Citations,
		Grounded:  rec.Grounded,
		Timestamp: rec.Timestamp,
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"messages":   s.deps.Pipeline.History(id),
	})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	cleared := s.deps.Pipeline.Clear(id)
	status := http.StatusOK
	if !cleared {
		status = http.StatusNotFound
	}
	respondJSON(w, status, map[string]interface{}{"session_id": id, "cleared": cleared})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   s.version,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.deps.Pipeline.Sessions()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.deps.Storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.deps.Storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents":         docCount,
		"chunks":            chunkCount,
		"vector_index_size": s.deps.Vectors.Size(),
	}
	if s.deps.Sessions != nil {
		sessions, turns := s.deps.Sessions.Stats()
		resp["sessions"] = sessions
		resp["turns"] = turns
	}

	cfg := s.config
	resp["config"] = map[string]interface{}{
		"vector_index_type":    s.deps.Vectors.Type(),
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"llm_provider":         cfg.LLM.Provider,
		"llm_model":            cfg.LLM.Model,
		"window":               cfg.Conversation.Window,
		"max_turns":            cfg.Session.MaxTurns,
		"retrieval_k":          cfg.Retrieval.K,
		"chunk_size":           cfg.Knowledge.ChunkSize,
		"chunk_overlap":        cfg.Knowledge.ChunkOverlap,
		"knowledge_path":       cfg.Knowledge.Path,
	}
	usage, err := storage.MeasureDiskUsage(map[string]string{
		"database":      cfg.Storage.DatabasePath,
		"vector_index":  cfg.Storage.VectorIndexPath,
		"keyword_index": cfg.Storage.KeywordIndexPath,
	})
	if err == nil {
		resp["disk_usage_bytes"] = usage.Total
		resp["disk_usage"] = usage.Paths
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	var q models.KnowledgeQuery
	if !decodeJSON(w, r, &q) {
		return
	}
	s.logger.Debug("knowledge search request", zap.String("query", q.Query), zap.String("mode", q.Mode))
	resp, err := s.deps.Searcher.Search(r.Context(), &q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKnowledgeRebuild(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("knowledge rebuild requested")
	report, err := s.deps.Indexer.Rebuild(r.Context(), "")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.saveVectors()
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if !decodeJSON(w, r, &input) {
		return
	}
	s.logger.Debug("index document request", zap.String("id", input.ID), zap.String("title", input.Title))
	chunks, err := s.deps.Indexer.IndexDocument(r.Context(), &input)
	if err != nil {
		s.logger.Error("indexing failed", zap.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.saveVectors()
	respondJSON(w, http.StatusCreated, map[string]interface{}{"id": input.ID, "status": "indexed", "chunks": len(chunks)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.deps.Storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.deps.Indexer.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.saveVectors()
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// saveVectors persists the vector index after a knowledge change. Failures are
// logged; the stored chunks still allow a restore on the next start.
func (s *Server) saveVectors() {
	if err := s.deps.Vectors.Save(s.config.Storage.VectorIndexPath); err != nil {
		s.logger.Warn("failed to save vector index", zap.Error(err))
	}
}

// statusFor maps an error from the pipeline or knowledge layer to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidInput), errors.Is(err, models.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, knowledge.ErrKeywordDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, knowledge.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	respondError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

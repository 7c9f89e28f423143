// Package api exposes the HTTP surface: ingestion, chat (JSON and SSE),
// stats and corpus clearing.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"civil-law-rag/chat"
	"civil-law-rag/config"
	"civil-law-rag/ingestion"
)

// IndexStore is the slice of the vector index the server needs for its
// stats and clear endpoints.
type IndexStore interface {
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// Server routes requests to the long-lived services built at startup. The
// connection pool, embedder and model client are shared across requests.
type Server struct {
	cfg     config.Config
	logger  *log.Logger
	handler http.Handler

	ingest *ingestion.Service
	chat   *chat.Service
	store  IndexStore

	mu        sync.Mutex
	lastStats *ingestion.Stats
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestRequest struct {
	Dir string `json:"dir"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

type chatRequest struct {
	Question string `json:"question"`
}

type statsResponse struct {
	IndexedChunks     int64            `json:"indexed_chunks"`
	EmbeddingProvider string           `json:"embedding_provider"`
	EmbeddingModel    string           `json:"embedding_model"`
	LLMModel          string           `json:"llm_model"`
	RetrievalMethod   string           `json:"retrieval_method"`
	TopK              int              `json:"top_k"`
	LastRun           *ingestion.Stats `json:"last_run,omitempty"`
}

func New(cfg config.Config, ingestSvc *ingestion.Service, chatSvc *chat.Service, store IndexStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		ingest: ingestSvc,
		chat:   chatSvc,
		store:  store,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/clear", s.handleClear)
	mux.HandleFunc("/chat", s.handleChatStream)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.cfg.DataDir
	}

	stats, err := s.ingest.IngestDirectory(r.Context(), dir)
	if stats != nil {
		s.mu.Lock()
		s.lastStats = stats
		s.mu.Unlock()
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingestion failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	resp, err := s.chat.Ask(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("chat failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleChatStream serves the answer as server-sent events: one data frame
// per answer unit, then the end sentinel.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	question := strings.TrimSpace(r.URL.Query().Get("q"))
	if question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query parameter q is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_, err := s.chat.AskStream(r.Context(), question, func(unit string) error {
		return writeSSE(w, flusher, unit)
	})
	if err != nil {
		// Headers are already sent; report the failure in-band.
		s.logger.Printf("chat stream failed: %v", err)
		_ = writeSSE(w, flusher, fmt.Sprintf("错误：%v", err))
	}
	_ = writeSSE(w, flusher, chat.EndSentinel)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, data string) error {
	// Multi-line payloads need one data: prefix per line to stay valid SSE.
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data:%s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	count, err := s.store.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("count index: %w", err))
		return
	}

	s.mu.Lock()
	last := s.lastStats
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, statsResponse{
		IndexedChunks:     count,
		EmbeddingProvider: s.cfg.Embeddings.Provider,
		EmbeddingModel:    s.cfg.Embeddings.Model,
		LLMModel:          s.cfg.LLM.Model,
		RetrievalMethod:   s.cfg.Retrieval.Method,
		TopK:              s.cfg.Retrieval.TopK,
		LastRun:           last,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear data"))
		return
	}

	if err := s.store.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear index: %w", err))
		return
	}
	s.logger.Println("cleared law_documents and law_chunks")

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "corpus cleared"})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

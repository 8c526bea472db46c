// Package api exposes the HTTP surface: document upload, chat, memory,
// and operational endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/halverson/skald/internal/ingest"
	"github.com/halverson/skald/internal/memory"
	"github.com/halverson/skald/internal/parser"
	"github.com/halverson/skald/internal/pipeline"
	"github.com/halverson/skald/internal/storage"
)

// maxUploadBytes caps multipart uploads at 32 MiB.
const maxUploadBytes = 32 << 20

const (
	sanityQuery    = "What is this system about?"
	sanityFallback = "Sanity check - LLM unavailable"
)

// Server holds the wired components behind the HTTP handlers.
type Server struct {
	ingestor   *ingest.Ingestor
	documents  ingest.DocumentStore
	turn       *pipeline.Turn
	memory     *memory.Store
	dataDir    string
	corsOrigin string
}

// NewServer wires the HTTP surface. dataDir is where sanity artifacts are
// written.
func NewServer(ingestor *ingest.Ingestor, documents ingest.DocumentStore, turn *pipeline.Turn, memoryStore *memory.Store, dataDir, corsOrigin string) *Server {
	return &Server{
		ingestor:   ingestor,
		documents:  documents,
		turn:       turn,
		memory:     memoryStore,
		dataDir:    dataDir,
		corsOrigin: corsOrigin,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(s.cors)

	r.Post("/upload", s.handleUpload)
	r.Get("/documents", s.handleListDocuments)
	r.Delete("/documents/{docID}", s.handleDeleteDocument)
	r.Post("/chat", s.handleChat)
	r.Get("/memory/{target}", s.handleReadMemory)
	r.Get("/memory-feed", s.handleMemoryFeed)
	r.Delete("/reset", s.handleReset)
	r.Get("/sanity", s.handleSanity)
	r.Get("/health", s.handleHealth)

	return r
}

// cors allows the configured origin on every route, answering preflights
// directly.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form", "invalid_request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing file field", "invalid_request")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "reading upload failed", "internal_error")
		return
	}

	doc, err := s.ingestor.Ingest(r.Context(), header.Filename, content)
	if errors.Is(err, parser.ErrUnsupportedType) {
		httpError(w, http.StatusBadRequest, "unsupported file type: only pdf, md, and txt are accepted", "invalid_request")
		return
	}
	if errors.Is(err, ingest.ErrEmptyDocument) {
		httpError(w, http.StatusBadRequest, "document contains no extractable text", "invalid_request")
		return
	}
	if err != nil {
		slog.Error("ingesting upload failed", "filename", header.Filename, "error", err)
		httpError(w, http.StatusInternalServerError, "indexing document failed", "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       doc.ID,
		"filename": doc.Filename,
		"chunks":   doc.ChunkCount,
		"status":   "indexed",
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.ListDocuments()
	if err != nil {
		slog.Error("listing documents failed", "error", err)
		httpError(w, http.StatusInternalServerError, "listing documents failed", "internal_error")
		return
	}
	if docs == nil {
		docs = []storage.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := s.ingestor.Delete(docID); err != nil {
		slog.Error("deleting document failed", "doc_id", docID, "error", err)
		httpError(w, http.StatusInternalServerError, "deleting document failed", "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if req.Message == "" {
		httpError(w, http.StatusBadRequest, "message is required", "invalid_request")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result := s.turn.Run(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReadMemory(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	content, err := s.memory.Read(target)
	if errors.Is(err, memory.ErrUnknownTarget) {
		httpError(w, http.StatusBadRequest, "unknown memory target: use user or company", "invalid_request")
		return
	}
	if err != nil {
		slog.Error("reading memory failed", "target", target, "error", err)
		httpError(w, http.StatusInternalServerError, "reading memory failed", "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"type": target, "content": content})
}

func (s *Server) handleMemoryFeed(w http.ResponseWriter, r *http.Request) {
	entries, err := s.memory.Feed(50)
	if err != nil {
		slog.Error("reading memory feed failed", "error", err)
		httpError(w, http.StatusInternalServerError, "reading memory feed failed", "internal_error")
		return
	}
	if entries == nil {
		entries = []storage.MemoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleReset wipes documents, vectors, memory files, and the feed. Each
// stage is attempted even if an earlier one fails; stage failures are
// logged degradations, not HTTP errors.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.memory.Reset(); err != nil {
		slog.Error("resetting memory failed", "error", err)
	}
	if err := s.ingestor.ResetAll(); err != nil {
		slog.Error("resetting documents failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type sanityReport struct {
	Timestamp        string              `json:"timestamp"`
	SampleQuery      string              `json:"sample_query"`
	AgentResponse    string              `json:"agent_response"`
	Citations        []pipeline.Citation `json:"citations"`
	DocumentsIndexed int                 `json:"documents_indexed"`
	Status           string              `json:"status"`
}

// handleSanity runs a fixed query end to end and writes the outcome to
// artifacts/sanity_output.json for operators.
func (s *Server) handleSanity(w http.ResponseWriter, r *http.Request) {
	count, err := s.documents.CountDocuments()
	if err != nil {
		slog.Error("counting documents failed", "error", err)
		httpError(w, http.StatusInternalServerError, "sanity check failed", "internal_error")
		return
	}

	result := s.turn.Run(r.Context(), sanityQuery)

	report := sanityReport{
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		SampleQuery:      sanityQuery,
		AgentResponse:    result.Response,
		Citations:        result.Citations,
		DocumentsIndexed: count,
		Status:           "ok",
	}
	if result.Response == "" || result.Response == pipeline.ApologyText {
		report.AgentResponse = sanityFallback
		report.Status = "degraded"
	}

	if err := s.writeSanityArtifact(report); err != nil {
		slog.Warn("writing sanity artifact failed", "error", err)
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeSanityArtifact(report sanityReport) error {
	dir := filepath.Join(s.dataDir, "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifacts directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sanity report: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "sanity_output.json"), data, 0o644)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.documents.CountDocuments()
	if err != nil {
		slog.Error("counting documents failed", "error", err)
		httpError(w, http.StatusInternalServerError, "health check failed", "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"documents_indexed": count,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}

// httpError writes the JSON error envelope used across the API.
func httpError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"message": message,
			"type":    errType,
		},
	})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/corpus"
	"github.com/ppiankov/casefile/internal/extract"
	"github.com/ppiankov/casefile/internal/graph"
	"github.com/ppiankov/casefile/internal/investigate"
	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/model"
	"github.com/ppiankov/casefile/internal/progress"
)

// errBadRequest marks client errors
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, investigate.ErrNoCorpus),
		errors.Is(err, investigate.ErrNoDocuments),
		errors.Is(err, investigate.ErrCorpusExists):
		return http.StatusConflict
	case errors.Is(err, investigate.ErrCorpusUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, llm.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, graph.ErrDocumentNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, corpus.ErrIndexTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}

func (s *Server) handleCreateCorpus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.svc.CreateCorpus(r.Context(), body.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"corpus_id": id})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.Documents(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, docs)
}

// handleUpload saves the "files" parts to the docs dir and ingests them.
// Files without readable text are still uploaded to the corpus.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, badRequest("invalid upload: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, badRequest("no files in upload"))
		return
	}
	if err := os.MkdirAll(s.config.DocsDir, 0o755); err != nil {
		s.writeError(w, fmt.Errorf("create docs dir: %w", err))
		return
	}

	docs := make([]investigate.Document, 0, len(headers))
	for _, fh := range headers {
		path, err := s.save(fh)
		if err != nil {
			s.writeError(w, err)
			return
		}
		docs = append(docs, s.document(path))
	}

	result, err := s.svc.Ingest(r.Context(), docs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) save(fh *multipart.FileHeader) (string, error) {
	name := filepath.Base(fh.Filename)
	if name == "." || name == string(filepath.Separator) {
		return "", badRequest("invalid file name %q", fh.Filename)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", name, err)
	}
	defer func() { _ = src.Close() }()

	path := filepath.Join(s.config.DocsDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return path, nil
}

// document loads the text of a saved file; binary files get no text
func (s *Server) document(path string) investigate.Document {
	doc, err := extract.LoadText(path)
	if err != nil {
		s.logger.Debug("No text for document", zap.String("path", path), zap.Error(err))
		doc = extract.Document{Name: filepath.Base(path)}
	}
	return investigate.Document{Document: doc, Path: path}
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	summary, err := s.svc.RemoveDocument(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "removed",
		"name":    name,
		"summary": summary,
	})
}

type askResponse struct {
	ID       string         `json:"id"`
	Question string         `json:"question"`
	Response string         `json:"response"`
	Route    model.Route    `json:"route"`
	Category model.Category `json:"category,omitempty"`
	Queries  []string       `json:"queries,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req investigate.AskRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, badRequest("question is required"))
		return
	}
	req.NoStream = true

	ans, err := s.svc.Ask(r.Context(), req, progress.Discard)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, askResponse{
		ID:       ans.ID,
		Question: ans.Question,
		Response: ans.Text,
		Route:    ans.Classification.Route,
		Category: ans.Classification.Category,
		Queries:  ans.Queries,
	})
}

type extractionStatus struct {
	Status    string        `json:"status"` // empty or ready
	Summary   model.Summary `json:"summary"`
	Documents []string      `json:"documents"`
}

func (s *Server) handleExtractionStatus(w http.ResponseWriter, r *http.Request) {
	g := s.svc.Graph(r.Context())
	st := extractionStatus{Status: "empty", Summary: graph.Summarize(g), Documents: g.Documents}
	if len(g.Documents) > 0 {
		st.Status = "ready"
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	g := s.svc.Graph(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"conflicts": g.Conflicts,
		"total":     len(g.Conflicts),
	})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	g := s.svc.Graph(r.Context())
	entities := g.Entities
	if t := r.URL.Query().Get("type"); t != "" {
		entities = make([]model.Entity, 0, len(g.Entities))
		for _, e := range g.Entities {
			if strings.EqualFold(string(e.Type), t) {
				entities = append(entities, e)
			}
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"total":    len(entities),
	})
}

func (s *Server) handleDeduplicate(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Deduplicate(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleReextract re-runs extraction for the named documents, or for
// every graph document kept in the docs dir when none are named
func (s *Server) handleReextract(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Documents []string `json:"documents"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	names := body.Documents
	if len(names) == 0 {
		for _, name := range s.svc.Graph(r.Context()).Documents {
			if _, err := os.Stat(filepath.Join(s.config.DocsDir, name)); err == nil {
				names = append(names, name)
			}
		}
	}

	docs := make([]investigate.Document, 0, len(names))
	for _, name := range names {
		path := filepath.Join(s.config.DocsDir, filepath.Base(name))
		doc, err := extract.LoadText(path)
		if err != nil {
			s.writeError(w, err)
			return
		}
		docs = append(docs, investigate.Document{Document: doc, Path: path})
	}

	result, err := s.svc.Reextract(r.Context(), docs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

package investigate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/extract"
	"github.com/ppiankov/casefile/internal/graph"
	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/model"
	"github.com/ppiankov/casefile/internal/state"
	"github.com/ppiankov/casefile/internal/worker"
)

// Document is one document to ingest. Path is the file uploaded to the
// corpus; documents without a path are only extracted into the graph.
type Document struct {
	extract.Document
	Path string
}

// DocumentResult is what ingesting one document produced
type DocumentResult struct {
	Name     string `json:"name"`
	FileID   string `json:"file_id,omitempty"`
	Entities int    `json:"entities"`
	Claims   int    `json:"claims"`
	Events   int    `json:"events"`
	KeyFacts int    `json:"key_facts"`
	Merged   bool   `json:"merged"`
	Error    string `json:"error,omitempty"`
}

// IngestResult summarizes an ingest
type IngestResult struct {
	CorpusID  string           `json:"corpus_id,omitempty"`
	Documents []DocumentResult `json:"documents"`
	Summary   model.Summary    `json:"summary"`
}

// Ingest uploads the documents to the corpus, waits for indexing, then
// extracts each document and merges it into the graph. A document whose
// extraction came back malformed is still merged with no items, so the
// graph lists it; one whose extraction call failed is skipped.
func (s *Service) Ingest(ctx context.Context, docs []Document) (*IngestResult, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	result := &IngestResult{Documents: make([]DocumentResult, len(docs))}
	for i, doc := range docs {
		result.Documents[i].Name = doc.Name
	}

	if err := s.upload(ctx, docs, result); err != nil {
		return nil, err
	}

	if err := s.extractAndMerge(ctx, docs, result); err != nil {
		return result, err
	}

	if err := s.deps.State.Set(ctx, state.KeyLastIngest, s.now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn("record ingest time failed", zap.Error(err))
	}
	result.Summary = graph.Summarize(s.Graph(ctx))
	return result, nil
}

func (s *Service) upload(ctx context.Context, docs []Document, result *IngestResult) error {
	if s.deps.Corpus == nil {
		return nil
	}

	var paths []string
	var index []int
	for i, doc := range docs {
		if doc.Path != "" {
			paths = append(paths, doc.Path)
			index = append(index, i)
		}
	}
	if len(paths) == 0 {
		return nil
	}

	id, err := s.ensureCorpus(ctx)
	if err != nil {
		return err
	}
	result.CorpusID = id

	fileIDs, err := s.deps.Corpus.Upload(ctx, id, paths)
	for j, fid := range fileIDs {
		result.Documents[index[j]].FileID = fid
	}
	if err != nil {
		return err
	}

	s.logger.Info("waiting for corpus indexing", zap.String("corpus", id), zap.Int("files", len(fileIDs)))
	return s.deps.Corpus.WaitUntilReady(ctx, id)
}

func (s *Service) extractAndMerge(ctx context.Context, docs []Document, result *IngestResult) error {
	// documents without text (scanned PDFs) are searchable through the
	// corpus but have nothing to extract
	var plain []extract.Document
	var index []int
	for i, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			result.Documents[i].Error = "no text to extract"
			continue
		}
		plain = append(plain, doc.Document)
		index = append(index, i)
	}

	if len(plain) == 0 {
		return nil
	}
	if s.deps.Extractor == nil {
		return fmt.Errorf("extract: %w", llm.ErrNotConfigured)
	}

	batch := worker.NewBatchExtractor(s.deps.Extractor, s.config.ExtractConcurrency)
	for _, r := range batch.ExtractAll(ctx, plain) {
		dr := &result.Documents[index[r.Index]]
		if r.Error != nil {
			dr.Error = r.Error.Error()
			if !errors.Is(r.Error, llm.ErrMalformedOutput) {
				s.logger.Warn("extraction failed, document not merged", zap.String("document", r.Document), zap.Error(r.Error))
				continue
			}
		}

		ext := r.Extraction
		ext.Document = r.Document
		if _, err := s.deps.Store.Merge(ctx, ext); err != nil {
			return fmt.Errorf("merge %s: %w", r.Document, err)
		}
		dr.Merged = true
		dr.Entities = len(ext.Entities)
		dr.Claims = len(ext.Claims)
		dr.Events = len(ext.Events)
		dr.KeyFacts = len(ext.KeyFacts)
	}
	return ctx.Err()
}

// RemoveDocument retracts a document from the graph. Conflicts are
// recomputed over what remains.
func (s *Service) RemoveDocument(ctx context.Context, name string) (model.Summary, error) {
	g, err := s.deps.Store.Remove(ctx, name)
	if err != nil {
		return model.Summary{}, err
	}
	return graph.Summarize(g), nil
}

// DedupeResult reports a deduplication pass
type DedupeResult struct {
	Before  int `json:"entities_before"`
	After   int `json:"entities_after"`
	Removed int `json:"duplicates_removed"`
}

// Deduplicate merges entities that name the same thing
func (s *Service) Deduplicate(ctx context.Context) (DedupeResult, error) {
	before, after, err := s.deps.Store.Deduplicate(ctx)
	if err != nil {
		return DedupeResult{}, err
	}
	return DedupeResult{Before: before, After: after, Removed: before - after}, nil
}

// Reextract drops what each document contributed and extracts it again.
// The corpus is left alone.
func (s *Service) Reextract(ctx context.Context, docs []Document) (*IngestResult, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	for _, doc := range docs {
		if _, err := s.deps.Store.Remove(ctx, doc.Name); err != nil && !errors.Is(err, graph.ErrDocumentNotFound) {
			return nil, err
		}
	}

	result := &IngestResult{Documents: make([]DocumentResult, len(docs))}
	for i, doc := range docs {
		result.Documents[i].Name = doc.Name
	}
	if err := s.extractAndMerge(ctx, docs, result); err != nil {
		return result, err
	}
	result.Summary = graph.Summarize(s.Graph(ctx))
	return result, nil
}

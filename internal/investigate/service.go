// Package investigate is the application layer: it ingests documents into
// the corpus and the extraction graph, and answers questions by routing
// them to the graph or to the chain-of-agents search
package investigate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/answer"
	"github.com/ppiankov/casefile/internal/coa"
	"github.com/ppiankov/casefile/internal/corpus"
	"github.com/ppiankov/casefile/internal/graph"
	"github.com/ppiankov/casefile/internal/model"
	"github.com/ppiankov/casefile/internal/router"
	"github.com/ppiankov/casefile/internal/state"
	"github.com/ppiankov/casefile/internal/worker"
)

var (
	// ErrNoCorpus means no searchable corpus exists yet
	ErrNoCorpus = errors.New("no documents uploaded, please upload documents first")

	// ErrNoDocuments means an ingest was asked to process nothing
	ErrNoDocuments = errors.New("no documents to ingest")

	// ErrCorpusExists is returned when creating a corpus while one is active
	ErrCorpusExists = errors.New("corpus already exists")
)

// Deps are the collaborators of a Service. Corpus may be nil when the
// provider has no vector store; Orchestrator and Synthesizer may be nil
// when no completion provider is configured, leaving graph answers only.
type Deps struct {
	Store        *graph.Store
	Router       *router.Router
	Engine       *answer.Engine
	Orchestrator *coa.Orchestrator
	Synthesizer  *coa.Synthesizer
	Extractor    worker.Extractor
	Corpus       *corpus.Manager
	State        state.Store
}

// Config holds the service settings
type Config struct {
	ExtractConcurrency int
	StreamChunk        int
	ReportPath         string
	CorpusName         string

	// Provider and Model are recorded in reports
	Provider string
	Model    string
}

// Service answers questions over the case documents
type Service struct {
	deps   Deps
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a service
func New(deps Deps, config Config, logger *zap.Logger) *Service {
	if config.ExtractConcurrency < 1 {
		config.ExtractConcurrency = 4
	}
	if config.StreamChunk < 1 {
		config.StreamChunk = 50
	}
	if config.ReportPath == "" {
		config.ReportPath = "report.md"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Router == nil {
		deps.Router = router.New(nil, logger)
	}
	if deps.Engine == nil {
		deps.Engine = answer.NewEngine(deps.Router, nil, logger)
	}
	return &Service{
		deps:   deps,
		config: config,
		logger: logger.Named("investigate"),
		now:    time.Now,
	}
}

// Graph returns a snapshot of the extraction graph
func (s *Service) Graph(ctx context.Context) *model.Graph {
	return s.deps.Store.Snapshot(ctx)
}

// CorpusID returns the active corpus id, or "" when there is none
func (s *Service) CorpusID(ctx context.Context) (string, error) {
	id, err := s.deps.State.Get(ctx, state.KeyVectorStoreID)
	if errors.Is(err, state.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read corpus id: %w", err)
	}
	return id, nil
}

// CreateCorpus makes a new corpus and records it as active
func (s *Service) CreateCorpus(ctx context.Context, name string) (string, error) {
	if s.deps.Corpus == nil {
		return "", fmt.Errorf("create corpus: %w", ErrCorpusUnsupported)
	}
	id, err := s.CorpusID(ctx)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, fmt.Errorf("%w: %s", ErrCorpusExists, id)
	}
	return s.createCorpus(ctx, name)
}

func (s *Service) createCorpus(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = s.config.CorpusName
	}
	id, err := s.deps.Corpus.Create(ctx, name)
	if err != nil {
		return "", err
	}
	if err := s.deps.State.Set(ctx, state.KeyVectorStoreID, id); err != nil {
		return "", fmt.Errorf("record corpus id: %w", err)
	}
	return id, nil
}

// ensureCorpus returns the active corpus, creating one if needed
func (s *Service) ensureCorpus(ctx context.Context) (string, error) {
	id, err := s.CorpusID(ctx)
	if err != nil || id != "" {
		return id, err
	}
	return s.createCorpus(ctx, "")
}

// DeleteCorpus removes the active corpus and forgets it. The graph is
// kept.
func (s *Service) DeleteCorpus(ctx context.Context) (string, error) {
	id, err := s.CorpusID(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrNoCorpus
	}
	if s.deps.Corpus == nil {
		return "", fmt.Errorf("delete corpus: %w", ErrCorpusUnsupported)
	}
	if err := s.deps.Corpus.Delete(ctx, id); err != nil {
		return "", err
	}
	if err := s.deps.State.Delete(ctx, state.KeyVectorStoreID); err != nil {
		return "", fmt.Errorf("forget corpus id: %w", err)
	}
	return id, nil
}

// Status is the readiness of the corpus and the graph
type Status struct {
	Status string         `json:"status"` // not_initialized, processing, ready or error
	Corpus *corpus.Status `json:"corpus,omitempty"`
	Graph  model.Summary  `json:"graph"`
	Error  string         `json:"error,omitempty"`
}

// Status reports corpus indexing progress and graph counts
func (s *Service) Status(ctx context.Context) Status {
	st := Status{Status: "not_initialized", Graph: graph.Summarize(s.Graph(ctx))}

	id, err := s.CorpusID(ctx)
	if err != nil {
		st.Status, st.Error = "error", err.Error()
		return st
	}
	if id == "" || s.deps.Corpus == nil {
		return st
	}

	cs, err := s.deps.Corpus.Status(ctx, id)
	if err != nil {
		st.Status, st.Error = "error", err.Error()
		return st
	}
	st.Corpus = &cs
	st.Status = "processing"
	if cs.Ready() {
		st.Status = "ready"
	}
	return st
}

// Documents lists what the graph holds and what the corpus holds
type Documents struct {
	Graph  []string      `json:"graph"`
	Corpus []corpus.File `json:"corpus"`
}

// Documents lists the processed documents
func (s *Service) Documents(ctx context.Context) (Documents, error) {
	docs := Documents{Graph: s.Graph(ctx).Documents, Corpus: []corpus.File{}}

	id, err := s.CorpusID(ctx)
	if err != nil || id == "" || s.deps.Corpus == nil {
		return docs, err
	}
	files, err := s.deps.Corpus.Files(ctx, id)
	if err != nil {
		return docs, err
	}
	if files != nil {
		docs.Corpus = files
	}
	return docs, nil
}

// ErrCorpusUnsupported is returned for corpus operations when the provider
// has no vector store
var ErrCorpusUnsupported = errors.New("provider has no document corpus")

// Reset empties the graph and removes every file from the active corpus,
// keeping the corpus itself. It returns how many corpus files were removed.
func (s *Service) Reset(ctx context.Context) (int, error) {
	if err := s.deps.Store.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset graph: %w", err)
	}

	id, err := s.CorpusID(ctx)
	if err != nil || id == "" || s.deps.Corpus == nil {
		return 0, err
	}
	n, err := s.deps.Corpus.Clear(ctx, id)
	if err != nil {
		return n, fmt.Errorf("clear corpus: %w", err)
	}
	s.logger.Info("corpus cleared", zap.String("corpus", id), zap.Int("files", n))
	return n, nil
}

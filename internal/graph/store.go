package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/metrics"
	"github.com/ppiankov/casefile/internal/model"
)

// ErrDocumentNotFound is returned when removing a document the graph
// does not hold
var ErrDocumentNotFound = errors.New("document not found in graph")

// Repository persists the graph as one versioned document
type Repository interface {
	// Load returns the stored graph, or an empty graph when nothing usable
	// is stored. It never fails on a missing or corrupt document.
	Load(ctx context.Context) *model.Graph

	// Save replaces the stored graph
	Save(ctx context.Context, g *model.Graph) error
}

// Detector recomputes the conflicts of a graph
type Detector interface {
	Detect(ctx context.Context, g *model.Graph) []model.Conflict
}

// FileRepository stores the graph as indented JSON at a fixed path
type FileRepository struct {
	path   string
	logger *zap.Logger
}

// NewFileRepository creates a repository backed by the file at path
func NewFileRepository(path string, logger *zap.Logger) *FileRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileRepository{path: path, logger: logger.Named("graph")}
}

// Path returns the file the graph is stored in
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the graph file
func (r *FileRepository) Load(ctx context.Context) *model.Graph {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("graph unreadable, starting empty", zap.String("path", r.path), zap.Error(err))
		}
		return model.NewGraph()
	}

	var g model.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		r.logger.Warn("graph corrupt, starting empty", zap.String("path", r.path), zap.Error(err))
		return model.NewGraph()
	}

	g.Normalize()
	return &g
}

// Save writes the graph atomically through a temp file and rename
func (r *FileRepository) Save(ctx context.Context, g *model.Graph) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create graph dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".graph-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write graph: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close graph: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace graph: %w", err)
	}
	return nil
}

// MemoryRepository keeps the graph in memory
type MemoryRepository struct {
	mu    sync.Mutex
	graph *model.Graph
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load(ctx context.Context) *model.Graph {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.graph == nil {
		return model.NewGraph()
	}
	return r.graph.Clone()
}

func (r *MemoryRepository) Save(ctx context.Context, g *model.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graph = g.Clone()
	return nil
}

// Store owns the graph. Every mutation runs load, change, recompute
// conflicts and save under one lock, so concurrent writers never
// interleave and readers never see a partial write.
type Store struct {
	repo     Repository
	detector Detector
	matcher  *Matcher
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewStore creates a store. A nil detector leaves conflicts empty.
func NewStore(repo Repository, detector Detector, matcher *Matcher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if matcher == nil {
		matcher = NewMatcher(true)
	}
	return &Store{
		repo:     repo,
		detector: detector,
		matcher:  matcher,
		logger:   logger.Named("graph"),
		now:      time.Now,
	}
}

// Snapshot returns a copy of the current graph
func (s *Store) Snapshot(ctx context.Context) *model.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Load(ctx)
}

// Update applies fn to the current graph and saves the result. Conflicts
// are recomputed after fn when recompute is true.
func (s *Store) Update(ctx context.Context, recompute bool, fn func(g *model.Graph) error) (*model.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.repo.Load(ctx)
	if err := fn(g); err != nil {
		return nil, err
	}

	if recompute {
		s.detect(ctx, g)
	}

	g.Version = model.GraphVersion
	g.UpdatedAt = s.now().UTC()
	g.Normalize()

	if err := s.repo.Save(ctx, g); err != nil {
		return nil, fmt.Errorf("save graph: %w", err)
	}
	return g.Clone(), nil
}

// Merge folds a document extraction into the graph and recomputes
// conflicts
func (s *Store) Merge(ctx context.Context, ext model.Extraction) (*model.Graph, error) {
	g, err := s.Update(ctx, true, func(g *model.Graph) error {
		Merge(g, ext)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GraphMutations.WithLabelValues("merge").Inc()
	s.logger.Info("merged document",
		zap.String("document", ext.Document),
		zap.Int("entities", len(ext.Entities)),
		zap.Int("claims", len(ext.Claims)),
		zap.Int("events", len(ext.Events)),
		zap.Int("conflicts", len(g.Conflicts)),
	)
	return g, nil
}

// Remove retracts a document and recomputes conflicts over what remains
func (s *Store) Remove(ctx context.Context, doc string) (*model.Graph, error) {
	g, err := s.Update(ctx, true, func(g *model.Graph) error {
		if !Remove(g, doc) {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GraphMutations.WithLabelValues("remove").Inc()
	s.logger.Info("removed document", zap.String("document", doc))
	return g, nil
}

// Deduplicate merges matching entities and reports the entity counts
// before and after
func (s *Store) Deduplicate(ctx context.Context) (before, after int, err error) {
	_, err = s.Update(ctx, false, func(g *model.Graph) error {
		before = len(g.Entities)
		g.Entities = Deduplicate(g.Entities, s.matcher)
		after = len(g.Entities)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	metrics.GraphMutations.WithLabelValues("deduplicate").Inc()
	s.logger.Info("deduplicated entities", zap.Int("before", before), zap.Int("after", after))
	return before, after, nil
}

// Reset replaces the graph with an empty one
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.Update(ctx, false, func(g *model.Graph) error {
		*g = *model.NewGraph()
		return nil
	})
	return err
}

func (s *Store) detect(ctx context.Context, g *model.Graph) {
	if s.detector == nil {
		g.Conflicts = []model.Conflict{}
		return
	}
	g.Conflicts = s.detector.Detect(ctx, g)
	metrics.ConflictsDetected.Set(float64(len(g.Conflicts)))
}

// Package corpus manages the searchable document corpus held in the
// completion vendor's vector store, and fetches web pages into it
package corpus

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrIndexTimeout is returned when the corpus is still indexing after
// every poll attempt
var ErrIndexTimeout = errors.New("corpus still indexing after wait period")

// API is the part of the OpenAI client the manager uses
type API interface {
	CreateVectorStore(ctx context.Context, request openai.VectorStoreRequest) (openai.VectorStore, error)
	RetrieveVectorStore(ctx context.Context, vectorStoreID string) (openai.VectorStore, error)
	DeleteVectorStore(ctx context.Context, vectorStoreID string) (openai.VectorStoreDeleteResponse, error)
	CreateFile(ctx context.Context, request openai.FileRequest) (openai.File, error)
	DeleteFile(ctx context.Context, fileID string) error
	CreateVectorStoreFile(ctx context.Context, vectorStoreID string, request openai.VectorStoreFileRequest) (openai.VectorStoreFile, error)
	DeleteVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) error
	ListVectorStoreFiles(ctx context.Context, vectorStoreID string, pagination openai.Pagination) (openai.VectorStoreFilesList, error)
}

// Config controls store naming and readiness polling
type Config struct {
	StoreName    string        `yaml:"store_name" mapstructure:"store_name"`
	PollAttempts int           `yaml:"poll_attempts" mapstructure:"poll_attempts"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// DefaultConfig polls 60 times, 2 seconds apart
func DefaultConfig() Config {
	return Config{
		StoreName:    "casefile",
		PollAttempts: 60,
		PollInterval: 2 * time.Second,
	}
}

// Status is a snapshot of a corpus's indexing state
type Status struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InProgress int    `json:"in_progress"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
}

// Ready reports whether no file is still being indexed
func (s Status) Ready() bool {
	return s.InProgress == 0
}

// File is one document attached to a corpus
type File struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Bytes  int    `json:"bytes"`
}

// Manager creates, fills and removes vector store corpora
type Manager struct {
	api    API
	config Config
	logger *zap.Logger
}

// NewManager creates a manager. Zero config fields take the defaults.
func NewManager(api API, config Config, logger *zap.Logger) *Manager {
	def := DefaultConfig()
	if config.StoreName == "" {
		config.StoreName = def.StoreName
	}
	if config.PollAttempts <= 0 {
		config.PollAttempts = def.PollAttempts
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{api: api, config: config, logger: logger.Named("corpus")}
}

// Create makes an empty corpus and returns its id. An empty name uses
// the configured store name.
func (m *Manager) Create(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = m.config.StoreName
	}
	vs, err := m.api.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("create vector store: %w", err)
	}
	m.logger.Info("corpus created", zap.String("id", vs.ID), zap.String("name", name))
	return vs.ID, nil
}

// Upload sends each file and attaches it to the corpus. It stops at the
// first failure and returns the ids attached so far.
func (m *Manager) Upload(ctx context.Context, id string, paths []string) ([]string, error) {
	fileIDs := make([]string, 0, len(paths))
	for _, path := range paths {
		f, err := m.api.CreateFile(ctx, openai.FileRequest{
			FileName: filepath.Base(path),
			FilePath: path,
			Purpose:  string(openai.PurposeAssistants),
		})
		if err != nil {
			return fileIDs, fmt.Errorf("upload %s: %w", path, err)
		}

		if _, err := m.api.CreateVectorStoreFile(ctx, id, openai.VectorStoreFileRequest{FileID: f.ID}); err != nil {
			return fileIDs, fmt.Errorf("attach %s: %w", path, err)
		}
		fileIDs = append(fileIDs, f.ID)
		m.logger.Debug("file attached", zap.String("path", path), zap.String("file_id", f.ID))
	}
	return fileIDs, nil
}

// Status reports indexing progress
func (m *Manager) Status(ctx context.Context, id string) (Status, error) {
	vs, err := m.api.RetrieveVectorStore(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("retrieve vector store: %w", err)
	}
	return Status{
		ID:         vs.ID,
		Name:       vs.Name,
		InProgress: vs.FileCounts.InProgress,
		Completed:  vs.FileCounts.Completed,
		Failed:     vs.FileCounts.Failed,
		Total:      vs.FileCounts.Total,
	}, nil
}

// WaitUntilReady polls until no file is in progress. It gives up with
// ErrIndexTimeout after the configured number of attempts.
func (m *Manager) WaitUntilReady(ctx context.Context, id string) error {
	for attempt := 1; attempt <= m.config.PollAttempts; attempt++ {
		status, err := m.Status(ctx, id)
		if err != nil {
			return err
		}
		if status.Ready() {
			if status.Failed > 0 {
				m.logger.Warn("corpus files failed to index", zap.String("id", id), zap.Int("failed", status.Failed))
			}
			return nil
		}
		m.logger.Debug("corpus indexing",
			zap.Int("attempt", attempt),
			zap.Int("in_progress", status.InProgress),
			zap.Int("total", status.Total))

		if attempt == m.config.PollAttempts {
			break
		}
		timer := time.NewTimer(m.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w", id, ErrIndexTimeout)
}

// Files lists every file attached to the corpus
func (m *Manager) Files(ctx context.Context, id string) ([]File, error) {
	var files []File
	limit := 100
	var after *string
	for {
		page, err := m.api.ListVectorStoreFiles(ctx, id, openai.Pagination{Limit: &limit, After: after})
		if err != nil {
			return nil, fmt.Errorf("list vector store files: %w", err)
		}
		for _, f := range page.VectorStoreFiles {
			files = append(files, File{ID: f.ID, Status: f.Status, Bytes: f.UsageBytes})
		}
		if !page.HasMore || page.LastID == nil {
			return files, nil
		}
		after = page.LastID
	}
}

// Clear detaches and deletes every file but keeps the corpus. Failures
// on single files are logged and skipped; the count removed is returned.
func (m *Manager) Clear(ctx context.Context, id string) (int, error) {
	files, err := m.Files(ctx, id)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		if err := m.api.DeleteVectorStoreFile(ctx, id, f.ID); err != nil {
			m.logger.Warn("detach file failed", zap.String("file_id", f.ID), zap.Error(err))
			continue
		}
		if err := m.api.DeleteFile(ctx, f.ID); err != nil {
			m.logger.Warn("delete file failed", zap.String("file_id", f.ID), zap.Error(err))
		}
		removed++
	}
	return removed, nil
}

// Delete removes the corpus
func (m *Manager) Delete(ctx context.Context, id string) error {
	if _, err := m.api.DeleteVectorStore(ctx, id); err != nil {
		return fmt.Errorf("delete vector store: %w", err)
	}
	m.logger.Info("corpus deleted", zap.String("id", id))
	return nil
}

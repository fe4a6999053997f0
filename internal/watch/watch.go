package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettle is how long a file must stay unchanged before it is handed
// over, so editors and copies that write in bursts are seen once
const DefaultSettle = 500 * time.Millisecond

// Handler receives the files that settled since the last call
type Handler func(ctx context.Context, paths []string) error

// Watcher reports new and rewritten files in one directory
type Watcher struct {
	dir    string
	settle time.Duration
	logger *zap.Logger
}

// New creates a watcher for dir. A zero settle uses DefaultSettle.
func New(dir string, settle time.Duration, logger *zap.Logger) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, settle: settle, logger: logger.Named("watch")}
}

// Run watches until ctx is done. Hidden files are ignored.
// Handler errors are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching for documents", zap.String("dir", w.dir))

	tick := w.settle / 5
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || hidden(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watch error", zap.Error(err))

		case now := <-ticker.C:
			paths := settled(pending, now, w.settle)
			if len(paths) == 0 {
				continue
			}
			if err := handle(ctx, paths); err != nil {
				w.logger.Error("Handling changed files failed", zap.Strings("paths", paths), zap.Error(err))
			}
		}
	}
}

// settled removes and returns the regular files whose last event is older
// than settle, sorted
func settled(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var paths []string
	for path, at := range pending {
		if now.Sub(at) < settle {
			continue
		}
		delete(pending, path)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			paths = append(paths, path)
		}
	}
	slices.Sort(paths)
	return paths
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

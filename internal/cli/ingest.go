package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/corpus"
	"github.com/ppiankov/casefile/internal/extract"
	"github.com/ppiankov/casefile/internal/investigate"
	"github.com/ppiankov/casefile/internal/watch"
	"github.com/ppiankov/casefile/internal/worker"
)

var (
	ingestURLs    []string
	ingestURLFile string
	ingestWatch   string
	ingestFresh   bool
	ingestUA      string
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Add documents to the corpus and the knowledge graph",
	Long: `Ingest uploads documents to the searchable corpus, waits until they are
indexed, then extracts entities, claims, events and key facts from each one
into the knowledge graph. Conflicts between documents are recomputed after
every merge.

Paths may be files or directories. Web pages are fetched (robots.txt is
honored), reduced to their visible text and kept in the docs directory.

Example:
  casefile ingest ./case/*.txt
  casefile ingest ./case --fresh
  casefile ingest --url https://example.com/press-release
  casefile ingest --url-file urls.txt
  casefile ingest --watch ./incoming`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringArrayVar(&ingestURLs, "url", nil, "fetch a web page as a document (repeatable)")
	ingestCmd.Flags().StringVar(&ingestURLFile, "url-file", "", "file with one URL per line")
	ingestCmd.Flags().StringVar(&ingestWatch, "watch", "", "keep ingesting files created in this directory")
	ingestCmd.Flags().BoolVar(&ingestFresh, "fresh", false, "empty the graph and the corpus before ingesting")
	ingestCmd.Flags().StringVar(&ingestUA, "ua", corpus.DefaultFetchConfig().UserAgent, "HTTP User-Agent for --url")
	ingestCmd.Flags().Int("concurrency", 0, "parallel extractions (default from config)")
	bindFlag(ingestCmd, "extract.concurrency", "concurrency")
}

func runIngest(cmd *cobra.Command, args []string) error {
	urls := ingestURLs
	if ingestURLFile != "" {
		fromFile, err := worker.ReadURLsFromFile(ingestURLFile)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	if len(args) == 0 && len(urls) == 0 && ingestWatch == "" {
		return fmt.Errorf("nothing to ingest: give paths, --url, --url-file or --watch")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		status := cmd.ErrOrStderr()

		if ingestFresh {
			removed, err := a.svc.Reset(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(status, "✓ Cleared graph and %d corpus files\n", removed)
		}

		docs, err := loadDocuments(args, a.logger)
		if err != nil {
			return err
		}
		if len(urls) > 0 {
			pages, err := fetchDocuments(ctx, a, urls, status)
			if err != nil {
				return err
			}
			docs = append(docs, pages...)
		}

		if len(docs) > 0 {
			if err := ingest(ctx, a, docs, cmd.OutOrStdout(), status); err != nil {
				return err
			}
		}

		if ingestWatch == "" {
			return nil
		}
		w := watch.New(ingestWatch, 0, a.logger)
		return w.Run(ctx, func(ctx context.Context, paths []string) error {
			docs, err := loadDocuments(paths, a.logger)
			if err != nil {
				return err
			}
			return ingest(ctx, a, docs, cmd.OutOrStdout(), status)
		})
	})
}

func ingest(ctx context.Context, a *app, docs []investigate.Document, out, status io.Writer) error {
	fmt.Fprintf(status, "⚙️  Ingesting %d documents...\n", len(docs))
	res, err := a.svc.Ingest(ctx, docs)
	if res != nil {
		for _, d := range res.Documents {
			if d.Error != "" {
				fmt.Fprintf(status, "✗ %s: %s\n", d.Name, d.Error)
				continue
			}
			fmt.Fprintf(status, "✓ %s: %d entities, %d claims, %d events, %d key facts\n",
				d.Name, d.Entities, d.Claims, d.Events, d.KeyFacts)
		}
	}
	if err != nil {
		return err
	}

	s := res.Summary
	fmt.Fprintf(out, "Graph: %d documents, %d entities, %d claims, %d events, %d conflicts\n",
		s.Documents, s.Entities, s.Claims, s.Events, s.Conflicts)
	if res.CorpusID != "" {
		fmt.Fprintf(out, "Corpus: %s\n", res.CorpusID)
	}
	return nil
}

// loadDocuments expands directories and reads every file. Files without
// text are kept with a path only, so they still reach the corpus.
func loadDocuments(paths []string, logger *zap.Logger) ([]investigate.Document, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if strings.HasPrefix(d.Name(), ".") && path != p {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}

	docs := make([]investigate.Document, 0, len(files))
	for _, path := range files {
		doc, err := extract.LoadText(path)
		if err != nil {
			logger.Debug("No text for document", zap.String("path", path), zap.Error(err))
			doc = extract.Document{Name: filepath.Base(path)}
		}
		docs = append(docs, investigate.Document{Document: doc, Path: path})
	}
	return docs, nil
}

// fetchDocuments downloads pages and keeps their text in the docs
// directory so the corpus can index them
func fetchDocuments(ctx context.Context, a *app, urls []string, status io.Writer) ([]investigate.Document, error) {
	fc := corpus.DefaultFetchConfig()
	fc.UserAgent = ingestUA
	fetcher := corpus.NewFetcher(fc, worker.NewLimiter(1, 2), a.cache, a.logger)

	dir := a.cfg.Server.DocsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create docs dir: %w", err)
	}

	var docs []investigate.Document
	for _, u := range urls {
		page, err := fetcher.Fetch(ctx, u)
		if err != nil {
			fmt.Fprintf(status, "✗ %s: %v\n", u, err)
			continue
		}

		path := filepath.Join(dir, page.Name())
		if err := os.WriteFile(path, []byte(page.Text), 0o644); err != nil {
			return nil, fmt.Errorf("save %s: %w", u, err)
		}
		fmt.Fprintf(status, "✓ Fetched %s → %s\n", u, path)
		docs = append(docs, investigate.Document{
			Document: extract.Document{Name: page.Name(), Text: page.Text},
			Path:     path,
		})
	}
	return docs, nil
}

package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/casefile/internal/extract"
	"github.com/ppiankov/casefile/internal/model"
)

// Extractor defines the interface for extracting one document
type Extractor interface {
	Extract(ctx context.Context, docName, text string) (model.Extraction, error)
}

// ExtractJob represents one document extraction
type ExtractJob struct {
	Index     int
	Document  extract.Document
	Extractor Extractor
}

// Execute executes the extraction job
func (j *ExtractJob) Execute(ctx context.Context) Result {
	ext, err := j.Extractor.Extract(ctx, j.Document.Name, j.Document.Text)
	return &ExtractResult{
		Index:      j.Index,
		Document:   j.Document.Name,
		Extraction: ext,
		Error:      err,
	}
}

// ExtractResult represents the result of an extraction job. Extraction is
// set even when Error is, carrying at least the document name.
type ExtractResult struct {
	Index      int
	Document   string
	Extraction model.Extraction
	Error      error
}

// GetError returns the error from the extraction result
func (r *ExtractResult) GetError() error {
	return r.Error
}

// BatchExtractor extracts multiple documents concurrently
type BatchExtractor struct {
	extractor   Extractor
	concurrency int
}

// NewBatchExtractor creates a new batch extractor
func NewBatchExtractor(extractor Extractor, concurrency int) *BatchExtractor {
	return &BatchExtractor{
		extractor:   extractor,
		concurrency: concurrency,
	}
}

// ExtractAll extracts every document and returns the results in input
// order. Documents not started before ctx is done are reported with the
// context error.
func (b *BatchExtractor) ExtractAll(ctx context.Context, docs []extract.Document) []*ExtractResult {
	if len(docs) == 0 {
		return []*ExtractResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, doc := range docs {
		pool.Submit(&ExtractJob{
			Index:     i,
			Document:  doc,
			Extractor: b.extractor,
		})
	}

	results := pool.Wait()

	out := make([]*ExtractResult, 0, len(docs))
	seen := make(map[int]bool, len(results))
	for _, result := range results {
		r := result.(*ExtractResult)
		seen[r.Index] = true
		out = append(out, r)
	}
	for i, doc := range docs {
		if !seen[i] {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("extraction of %s did not run", doc.Name)
			}
			out = append(out, &ExtractResult{
				Index:      i,
				Document:   doc.Name,
				Extraction: model.Extraction{Document: doc.Name},
				Error:      err,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ReadURLsFromFile reads URLs from a file (one per line)
func ReadURLsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Deduplicate URLs
		if !seen[line] {
			seen[line] = true
			urls = append(urls, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return urls, nil
}

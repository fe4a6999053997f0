// Package coa runs the chain-of-agents search: a question is decomposed
// into search angles, parallel workers search the corpus, and their
// outputs are reduced into one synthesis input.
package coa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/metrics"
	"github.com/ppiankov/casefile/internal/model"
)

// DefaultWorkers is the worker count when none is configured
const DefaultWorkers = 4

const focusPreview = 40

// ProgressFunc receives status updates. current is 0 before
// decomposition and the 1-based worker index after that; calls arrive in
// non-decreasing order of current.
type ProgressFunc func(status string, current, total int)

// Config tunes the orchestrator
type Config struct {
	Workers          int    `yaml:"workers" mapstructure:"workers"`
	QueryExpansion   bool   `yaml:"query_expansion" mapstructure:"query_expansion"`
	HistoryTurnLimit int    `yaml:"history_turn_limit" mapstructure:"history_turn_limit"`
	Model            string `yaml:"model,omitempty" mapstructure:"model"`
}

// Options are per-run settings
type Options struct {
	// Workers overrides the configured worker count when positive
	Workers int

	// NoExpand disables decomposition for this run
	NoExpand bool

	History    []model.Turn
	OnProgress ProgressFunc
}

// Run is the result of one orchestration
type Run struct {
	Question       string
	Queries        []string
	Expanded       bool
	Outputs        []model.WorkerOutput // One per worker, in pass order
	ReductionInput string
}

// Orchestrator fans a question out to search workers and builds the
// reduction input. It does not call the reducer; callers choose between
// streaming and blocking synthesis.
type Orchestrator struct {
	searcher   llm.Searcher
	decomposer *Decomposer
	prompts    Prompts
	config     Config
	logger     *zap.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(searcher llm.Searcher, decomposer *Decomposer, prompts Prompts, config Config, logger *zap.Logger) *Orchestrator {
	if config.Workers < 1 {
		config.Workers = DefaultWorkers
	}
	if config.HistoryTurnLimit < 1 {
		config.HistoryTurnLimit = DefaultHistoryTurnLimit
	}
	if decomposer == nil {
		decomposer = NewDecomposer(nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		searcher:   searcher,
		decomposer: decomposer,
		prompts:    prompts,
		config:     config,
		logger:     logger.Named("coa"),
	}
}

// Run decomposes question, runs one search worker per query and returns
// every worker output plus the reduction input. A failing or malformed
// worker degrades to a raw-text output; only a missing corpus or a
// cancelled context fail the run.
func (o *Orchestrator) Run(ctx context.Context, question, corpusID string, opts Options) (*Run, error) {
	if corpusID == "" {
		return nil, errors.New("corpus id is required")
	}
	if o.searcher == nil {
		return nil, llm.ErrSearchUnsupported
	}

	n := o.config.Workers
	if opts.Workers > 0 {
		n = opts.Workers
	}
	progress := opts.OnProgress
	if progress == nil {
		progress = func(string, int, int) {}
	}
	history := FormatHistory(opts.History, o.config.HistoryTurnLimit)

	progress("Analyzing question and generating search strategies...", 0, n)

	var queries []string
	var expanded bool
	if o.config.QueryExpansion && !opts.NoExpand {
		queries, expanded = o.decomposer.Decompose(ctx, question, n, false)
	} else {
		queries = repeat(question, n)
	}
	if expanded {
		o.logger.Info("question expanded", zap.Int("variants", n))
	}

	outputs := make([]model.WorkerOutput, n)
	gate := newOrderedGate(n, func(i int) {
		progress(workerStatus(i, queries[i], question, expanded), i+1, n)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			input := o.workerInput(history, question, queries[i], i, n)
			outputs[i] = o.runWorker(gctx, corpusID, input, queries[i], i)
			gate.done(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run workers: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run workers: %w", err)
	}

	reduction, err := o.reductionInput(history, question, outputs)
	if err != nil {
		return nil, err
	}

	return &Run{
		Question:       question,
		Queries:        queries,
		Expanded:       expanded,
		Outputs:        outputs,
		ReductionInput: reduction,
	}, nil
}

func (o *Orchestrator) runWorker(ctx context.Context, corpusID, input, focus string, index int) model.WorkerOutput {
	start := time.Now()
	resp, err := o.searcher.Search(ctx, llm.SearchRequest{
		CorpusID: corpusID,
		Query:    input,
		Model:    o.config.Model,
	})
	metrics.WorkerPassDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		o.logger.Warn("worker search failed", zap.Int("worker", index+1), zap.Error(err))
		metrics.WorkerOutcomes.WithLabelValues("failed").Inc()
		return model.WorkerOutput{
			model.WorkerKeyRawText:     "",
			model.WorkerKeyError:       err.Error(),
			model.WorkerKeySearchQuery: focus,
		}
	}

	parsed, err := llm.ParseJSON[map[string]any](resp.Text)
	if err != nil || parsed == nil {
		o.logger.Warn("worker returned malformed output", zap.Int("worker", index+1), zap.Error(err))
		metrics.WorkerOutcomes.WithLabelValues("malformed").Inc()
		return model.WorkerOutput{
			model.WorkerKeyRawText:     resp.Text,
			model.WorkerKeySearchQuery: focus,
		}
	}

	metrics.WorkerOutcomes.WithLabelValues("parsed").Inc()
	parsed[model.WorkerKeySearchQuery] = focus
	return model.WorkerOutput(parsed)
}

func (o *Orchestrator) workerInput(history, question, focus string, index, total int) string {
	var b strings.Builder
	b.WriteString(o.prompts.Worker)
	b.WriteString("\n\n")
	b.WriteString(history)
	fmt.Fprintf(&b, "ORIGINAL USER QUESTION:\n%s\n\n", question)
	fmt.Fprintf(&b, "YOUR SEARCH FOCUS:\n%s\n\n", focus)
	fmt.Fprintf(&b, "WORKER PASS: %d/%d\n", index+1, total)
	b.WriteString("Search for information related to your focus area while keeping the original question in mind.")
	return b.String()
}

// reductionInput combines the manager prompt, the history, the question
// and every worker output as one indented JSON array
func (o *Orchestrator) reductionInput(history, question string, outputs []model.WorkerOutput) (string, error) {
	data, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode worker outputs: %w", err)
	}

	var b strings.Builder
	b.WriteString(o.prompts.Manager)
	b.WriteString("\n\n")
	b.WriteString(history)
	fmt.Fprintf(&b, "CURRENT QUESTION:\n%s\n\n", question)
	fmt.Fprintf(&b, "WORKER OUTPUTS (JSON):\n%s\n", data)
	return b.String(), nil
}

func workerStatus(index int, focus, question string, expanded bool) string {
	if expanded && focus != question {
		return fmt.Sprintf("Worker %d searching: %q", index+1, clip(focus, focusPreview))
	}
	return fmt.Sprintf("Worker %d analyzing documents...", index+1)
}

// orderedGate releases completions in index order. A worker finishing
// early is held until every lower index has finished.
type orderedGate struct {
	mu       sync.Mutex
	finished []bool
	next     int
	release  func(int)
}

func newOrderedGate(n int, release func(int)) *orderedGate {
	return &orderedGate{finished: make([]bool, n), release: release}
}

func (g *orderedGate) done(i int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.finished[i] = true
	for g.next < len(g.finished) && g.finished[g.next] {
		g.release(g.next)
		g.next++
	}
}

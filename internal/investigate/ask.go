package investigate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/coa"
	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/model"
	"github.com/ppiankov/casefile/internal/progress"
)

// DefaultReportQuestion is asked when a report is requested without one
const DefaultReportQuestion = "Summarize the case: timeline, key findings, conflicts, gaps."

// AskRequest is one question with its conversation
type AskRequest struct {
	Question string       `json:"question"`
	History  []model.Turn `json:"history,omitempty"`
	Workers  int          `json:"workers,omitempty"`
	NoExpand bool         `json:"no_expand,omitempty"`

	// NoStream synthesizes with one blocking call and sends the answer
	// as a single chunk
	NoStream bool `json:"no_stream,omitempty"`
}

// Answer is the outcome of Ask
type Answer struct {
	ID             string               `json:"id"`
	Question       string               `json:"question"`
	Text           string               `json:"answer"`
	Classification model.Classification `json:"classification"`
	Queries        []string             `json:"queries,omitempty"`
	Expanded       bool                 `json:"expanded,omitempty"`
	Workers        []model.WorkerOutput `json:"workers,omitempty"`
}

// Ask routes the question and streams the answer to sink. Exhaustive
// questions are answered from the graph; specific ones run the chain of
// agents over the corpus. Failures are reported on sink as an error event
// and returned.
func (s *Service) Ask(ctx context.Context, req AskRequest, sink progress.Sink) (*Answer, error) {
	stream := progress.NewStream(sink)
	ans, err := s.ask(ctx, req, stream)
	if err != nil {
		_ = stream.Error(userMessage(err))
		return nil, err
	}
	return ans, nil
}

func (s *Service) ask(ctx context.Context, req AskRequest, stream *progress.Stream) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errors.New("question is empty")
	}

	g := s.Graph(ctx)
	corpusID, err := s.CorpusID(ctx)
	if err != nil {
		return nil, err
	}
	if len(g.Documents) == 0 && corpusID == "" {
		return nil, ErrNoCorpus
	}

	cls := s.deps.Router.Classify(question, g)
	ans := &Answer{ID: uuid.NewString(), Question: question, Classification: cls}

	if cls.Exhaustive() {
		if err := stream.Stage(progress.StageGraph, "Answering from extracted knowledge graph..."); err != nil {
			return nil, sendError(err)
		}
		res := s.deps.Engine.Answer(ctx, question, g, cls.Category)
		ans.Text = res.Text
		if err := s.emit(stream, question, coa.Chunk(res.Text, s.config.StreamChunk)); err != nil {
			return nil, err
		}
		return ans, nil
	}

	if corpusID == "" {
		return nil, ErrNoCorpus
	}
	if s.deps.Orchestrator == nil || s.deps.Synthesizer == nil {
		return nil, fmt.Errorf("answer from documents: %w", llm.ErrNotConfigured)
	}

	if err := stream.Stage(progress.StageWorkers, "Analyzing documents with worker agents..."); err != nil {
		return nil, sendError(err)
	}
	run, err := s.deps.Orchestrator.Run(ctx, question, corpusID, coa.Options{
		Workers:  req.Workers,
		NoExpand: req.NoExpand,
		History:  req.History,
		OnProgress: func(status string, current, total int) {
			if err := stream.Worker(current, total, status); err != nil {
				s.logger.Debug("worker progress not delivered", zap.Error(err))
			}
		},
	})
	if err != nil {
		return nil, err
	}
	ans.Queries = run.Queries
	ans.Expanded = run.Expanded
	ans.Workers = run.Outputs

	if err := stream.Stage(progress.StageSynthesizing, "Synthesizing findings..."); err != nil {
		return nil, sendError(err)
	}

	if req.NoStream {
		text, err := s.deps.Synthesizer.Complete(ctx, run.ReductionInput)
		if err != nil {
			return nil, err
		}
		ans.Text = text
		if err := s.emit(stream, question, []string{text}); err != nil {
			return nil, err
		}
		return ans, nil
	}

	var text strings.Builder
	for fragment := range s.deps.Synthesizer.Stream(ctx, run.ReductionInput) {
		// stream_start waits for the first fragment so listeners keep
		// showing the synthesizing stage until text is ready
		if !stream.Started() {
			if err := stream.Start(); err != nil {
				return nil, sendError(err)
			}
		}
		if err := stream.Chunk(fragment); err != nil {
			return nil, sendError(err)
		}
		text.WriteString(fragment)
	}
	if !stream.Started() {
		if err := stream.Start(); err != nil {
			return nil, sendError(err)
		}
	}
	if err := stream.End(question); err != nil {
		return nil, sendError(err)
	}

	ans.Text = text.String()
	return ans, nil
}

// emit sends a complete answer as stream_start, chunks and stream_end
func (s *Service) emit(stream *progress.Stream, question string, chunks []string) error {
	if err := stream.Start(); err != nil {
		return sendError(err)
	}
	for _, c := range chunks {
		if err := stream.Chunk(c); err != nil {
			return sendError(err)
		}
	}
	if err := stream.End(question); err != nil {
		return sendError(err)
	}
	return nil
}

func sendError(err error) error {
	return fmt.Errorf("send progress: %w", err)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoCorpus):
		return "No documents uploaded. Please upload documents first."
	case errors.Is(err, llm.ErrNotConfigured):
		return "No completion provider configured. Set llm.provider and an API key."
	}
	return err.Error()
}

// Report runs the chain of agents for question without routing, writes
// the answer as markdown to path and returns it. An empty question asks
// for a case summary; an empty path uses the configured report path.
func (s *Service) Report(ctx context.Context, question, path string, sink progress.Sink) (*model.Report, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		question = DefaultReportQuestion
	}
	if path == "" {
		path = s.config.ReportPath
	}

	corpusID, err := s.CorpusID(ctx)
	if err != nil {
		return nil, err
	}
	if corpusID == "" {
		return nil, ErrNoCorpus
	}
	if s.deps.Orchestrator == nil || s.deps.Synthesizer == nil {
		return nil, fmt.Errorf("write report: %w", llm.ErrNotConfigured)
	}

	stream := progress.NewStream(sink)
	_ = stream.Stage(progress.StageWorkers, "Analyzing documents with worker agents...")
	run, err := s.deps.Orchestrator.Run(ctx, question, corpusID, coa.Options{
		OnProgress: func(status string, current, total int) {
			_ = stream.Worker(current, total, status)
		},
	})
	if err != nil {
		_ = stream.Error(userMessage(err))
		return nil, err
	}

	_ = stream.Stage(progress.StageSynthesizing, "Synthesizing findings...")
	text, err := s.deps.Synthesizer.Complete(ctx, run.ReductionInput)
	if err != nil {
		_ = stream.Error(userMessage(err))
		return nil, err
	}

	report := &model.Report{
		ID:          uuid.NewString(),
		Question:    question,
		Route:       model.RouteSpecific,
		Answer:      text,
		Queries:     run.Queries,
		Expanded:    run.Expanded,
		Workers:     run.Outputs,
		Provider:    s.config.Provider,
		Model:       s.config.Model,
		GeneratedAt: s.now(),
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(report.Markdown(true)), 0644); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	s.logger.Info("report written", zap.String("path", path), zap.Int("workers", len(run.Outputs)))
	return report, nil
}

// Package answer renders answers to exhaustive questions straight from
// the extraction graph
package answer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/metrics"
	"github.com/ppiankov/casefile/internal/model"
	"github.com/ppiankov/casefile/internal/router"
)

const synthesisSystem = `You are an investigative analyst assistant. You receive structured data extracted from case documents and turn it into a clear, professional answer to the user's question.

MARKDOWN FORMATTING RULES:
- Use ## for main sections, ### for subsections and #### only when needed; never use ##### or ######
- Put a blank line after every header and between paragraphs
- Use **bold** for key names, dates and facts, *italics* for sources and citations
- Use > blockquotes for direct quotes, with a blank line before and after
- Use - bullet lists with a blank line before and after the list and single line breaks between items
- Use --- to separate major sections

CONTENT GUIDELINES:
- Keep a professional, analytical tone
- Lead with the most important findings and organize by what the user asked
- Explain the significance of any conflicts or inconsistencies
- Cite sources when they are available
- Acknowledge when the data does not fully answer the question

ANTI-HALLUCINATION RULES:
- ONLY restate information present in the extracted data
- If the user asks about a person or entity that is not in the data, say "No information found about [name] in the documents"
- NEVER invent names, dates, facts or relationships
- If the data is empty or irrelevant, say so plainly
- Prefer "The documents do not specify..." over any assumption or general knowledge`

// Result is a rendered graph answer
type Result struct {
	Text        string         `json:"text"`
	Category    model.Category `json:"category"`
	OK          bool           `json:"ok"`          // False when the graph could not answer at all
	Synthesized bool           `json:"synthesized"` // Whether the text was rewritten by the completion service
}

// Engine answers exhaustive questions from a graph snapshot. With a
// completer set, every successful template answer is rewritten into
// prose; the template stays the source of truth and is returned
// unchanged when rewriting fails.
type Engine struct {
	router    *router.Router
	completer llm.Completer
	logger    *zap.Logger
}

// NewEngine creates an engine. completer may be nil.
func NewEngine(r *router.Router, completer llm.Completer, logger *zap.Logger) *Engine {
	if r == nil {
		r = router.New(nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		router:    r,
		completer: completer,
		logger:    logger.Named("answer"),
	}
}

// Answer renders the answer for question in category. An empty category
// is resolved from the question.
func (e *Engine) Answer(ctx context.Context, question string, g *model.Graph, category model.Category) Result {
	if category == "" {
		category = e.router.Category(question, g)
	}

	text, ok := e.Render(question, g, category)
	result := Result{Text: text, Category: category, OK: ok}
	if !ok || e.completer == nil {
		return result
	}

	synthesized, err := e.synthesize(ctx, question, text, category)
	if err != nil {
		e.logger.Warn("graph answer synthesis failed, using template", zap.Error(err))
		metrics.SynthesisPaths.WithLabelValues("graph_template").Inc()
		return result
	}

	metrics.SynthesisPaths.WithLabelValues("graph").Inc()
	result.Text = synthesized
	result.Synthesized = true
	return result
}

// Render builds the template answer without any completion call. It
// reports false when the graph holds no documents or a lookup produced
// nothing.
func (e *Engine) Render(question string, g *model.Graph, category model.Category) (string, bool) {
	if g == nil || len(g.Documents) == 0 {
		return NoDocuments, false
	}

	switch category {
	case model.CategoryConflicts:
		return renderConflicts(g), true
	case model.CategoryEntities:
		names, matches := e.router.FindEntities(question, g)
		return renderEntities(question, names, matches, g)
	case model.CategoryEvents:
		return renderEvents(g), true
	case model.CategorySummary:
		return renderSummary(g), true
	default:
		return renderGeneral(g), true
	}
}

func (e *Engine) synthesize(ctx context.Context, question, data string, category model.Category) (string, error) {
	prompt := fmt.Sprintf("User's Question: %s\n\nQuery Category: %s\n\nExtracted Data:\n%s\n\n"+
		"Based on the extracted data above, write a well-organized markdown answer that directly addresses the question.",
		question, category, data)

	resp, err := e.completer.Complete(ctx, llm.Request{
		System: synthesisSystem,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	if resp.Text == "" {
		return "", fmt.Errorf("synthesize answer: %w", llm.ErrEmptyResponse)
	}
	return resp.Text, nil
}

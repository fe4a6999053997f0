package coa

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/metrics"
)

// Phrases that signal a question has more than one aspect
var multiAspectIndicators = []string{
	" and ", " or ", "including", "such as", "especially",
	"relationship", "connection", "between", "compare",
	"timeline", "sequence", "history", "background",
}

// ShouldExpand reports whether a question is worth decomposing. Questions
// under six words never are. Longer ones are when they have several
// aspects, name two or more things after the first word, or run to twelve
// words or more.
func ShouldExpand(question string) bool {
	words := strings.Fields(question)
	if len(words) < 6 {
		return false
	}

	lower := strings.ToLower(question)
	for _, indicator := range multiAspectIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}

	capitalized := 0
	for _, w := range words[1:] {
		if r := []rune(w)[0]; unicode.IsUpper(r) {
			capitalized++
		}
	}
	if capitalized >= 2 {
		return true
	}

	return len(words) >= 12
}

// Decomposer expands a question into diverse search queries
type Decomposer struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewDecomposer creates a decomposer. A nil completer never expands.
func NewDecomposer(completer llm.Completer, logger *zap.Logger) *Decomposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decomposer{completer: completer, logger: logger.Named("decompose")}
}

// Decompose returns exactly n search queries and whether they came from
// expansion. It never fails: skipped or failed expansion returns n copies
// of the question. force bypasses the ShouldExpand gate.
func (d *Decomposer) Decompose(ctx context.Context, question string, n int, force bool) ([]string, bool) {
	if n < 1 {
		n = 1
	}

	if d.completer == nil || (!force && !ShouldExpand(question)) {
		metrics.Decompositions.WithLabelValues("skipped").Inc()
		return repeat(question, n), false
	}

	resp, err := d.completer.Complete(ctx, llm.Request{Prompt: decomposePrompt(question, n)})
	if err != nil {
		d.logger.Warn("query decomposition failed", zap.Error(err))
		metrics.Decompositions.WithLabelValues("fallback").Inc()
		return repeat(question, n), false
	}

	items, err := llm.ParseJSON[[]any](resp.Text)
	if err != nil {
		d.logger.Warn("query decomposition returned no JSON array", zap.Error(err))
		metrics.Decompositions.WithLabelValues("fallback").Inc()
		return repeat(question, n), false
	}

	queries := make([]string, 0, n)
	for _, item := range items {
		if len(queries) == n {
			break
		}
		if s, ok := item.(string); ok {
			queries = append(queries, s)
		} else {
			queries = append(queries, fmt.Sprint(item))
		}
	}
	for len(queries) < n {
		queries = append(queries, question)
	}

	metrics.Decompositions.WithLabelValues("expanded").Inc()
	d.logger.Debug("expanded question", zap.Strings("queries", queries))
	return queries, true
}

func decomposePrompt(question string, n int) string {
	return fmt.Sprintf(`Generate %d different search queries to find information for this investigation question.

RULES:
- Each query should target a DIFFERENT aspect, angle, or entity
- Use DIFFERENT vocabulary to maximize semantic search coverage
- Keep queries focused and specific
- Include variations that might surface edge cases or related context

QUESTION: %s

Return ONLY a valid JSON array of exactly %d search query strings.
Example format: ["query about aspect 1", "query about aspect 2"]`, n, question, n)
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

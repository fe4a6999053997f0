// Package router decides whether a question is answered from the
// extraction graph or by searching the documents
package router

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/graph"
	"github.com/ppiankov/casefile/internal/metrics"
	"github.com/ppiankov/casefile/internal/model"
)

// Input is what every rule sees for one question
type Input struct {
	Question string
	Lower    string // Lowercased, trimmed question
	Names    []string
	Graph    *model.Graph
	Index    *graph.Index
}

// Decision is the outcome of a rule that applied
type Decision struct {
	Route   model.Route
	Matches []model.Entity
}

// Rule is one step of the routing cascade. Decide reports whether the
// rule applies; rules are evaluated top-down and the first one that
// applies decides.
type Rule struct {
	Name   string
	Decide func(in Input) (Decision, bool)
}

// Rules returns the routing cascade:
//  1. aggregate questions go to the graph
//  2. entity lookups go to the graph when the entity is known, to search
//     when a name is given but unknown, and to the graph when no name is given
//  3. questions needing verbatim context go to search
//  4. everything else goes to search
func Rules() []Rule {
	return []Rule{
		{Name: "comprehensive", Decide: comprehensive},
		{Name: "entity-lookup", Decide: entityLookup},
		{Name: "deep-analysis", Decide: deepAnalysis},
		{Name: "default", Decide: func(Input) (Decision, bool) {
			return Decision{Route: model.RouteSpecific}, true
		}},
	}
}

func comprehensive(in Input) (Decision, bool) {
	if containsAny(in.Lower, comprehensiveKeywords) {
		return Decision{Route: model.RouteExhaustive}, true
	}
	return Decision{}, false
}

func entityLookup(in Input) (Decision, bool) {
	if !matchesAny(entityLookupPatterns, in.Lower) {
		return Decision{}, false
	}
	// With nothing extracted yet the graph cannot answer a lookup
	if in.Graph == nil || len(in.Graph.Entities) == 0 {
		return Decision{}, false
	}
	if len(in.Names) == 0 {
		return Decision{Route: model.RouteExhaustive}, true
	}

	matches := in.Index.Find(in.Names)
	if len(matches) > 0 {
		return Decision{Route: model.RouteExhaustive, Matches: matches}, true
	}
	return Decision{Route: model.RouteSpecific}, true
}

func deepAnalysis(in Input) (Decision, bool) {
	if matchesAny(deepAnalysisPatterns, in.Lower) {
		return Decision{Route: model.RouteSpecific}, true
	}
	return Decision{}, false
}

// Router classifies questions against the current graph. It holds no
// per-question state; the graph is passed in on every call.
type Router struct {
	matcher *graph.Matcher
	rules   []Rule
	logger  *zap.Logger
}

// New creates a router with the default rule cascade
func New(matcher *graph.Matcher, logger *zap.Logger) *Router {
	return NewWithRules(matcher, Rules(), logger)
}

// NewWithRules creates a router evaluating rules in order. The last rule
// should always apply; if none does the question is routed to search.
func NewWithRules(matcher *graph.Matcher, rules []Rule, logger *zap.Logger) *Router {
	if matcher == nil {
		matcher = graph.NewMatcher(true)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		matcher: matcher,
		rules:   rules,
		logger:  logger.Named("router"),
	}
}

// Matcher returns the entity matcher the router uses
func (r *Router) Matcher() *graph.Matcher {
	return r.matcher
}

// Classify routes question. g may be nil when nothing has been extracted.
func (r *Router) Classify(question string, g *model.Graph) model.Classification {
	in := r.input(question, g)

	result := model.Classification{
		Route: model.RouteSpecific,
		Rule:  "none",
		Names: in.Names,
	}
	for _, rule := range r.rules {
		d, ok := rule.Decide(in)
		if !ok {
			continue
		}
		result.Route = d.Route
		result.Rule = rule.Name
		for _, e := range d.Matches {
			result.Matches = append(result.Matches, e.Name)
		}
		break
	}

	if result.Exhaustive() {
		result.Category = r.category(in)
	}

	if len(in.Names) > 0 {
		r.logger.Debug("entity lookup",
			zap.Strings("names", in.Names),
			zap.Strings("matches", result.Matches),
		)
	}
	r.logger.Debug("routed question",
		zap.String("route", string(result.Route)),
		zap.String("category", string(result.Category)),
		zap.String("rule", result.Rule),
	)
	metrics.RouteDecisions.WithLabelValues(string(result.Route), string(result.Category), result.Rule).Inc()

	return result
}

// Category picks the graph renderer for a question. It is looser than
// routing: a question mentioning any known entity is an entity question.
func (r *Router) Category(question string, g *model.Graph) model.Category {
	return r.category(r.input(question, g))
}

// FindEntities returns the known entities the names in question refer to
func (r *Router) FindEntities(question string, g *model.Graph) (names []string, matches []model.Entity) {
	in := r.input(question, g)
	if len(in.Names) == 0 {
		return nil, nil
	}
	return in.Names, in.Index.Find(in.Names)
}

func (r *Router) category(in Input) model.Category {
	switch {
	case containsAny(in.Lower, conflictKeywords):
		return model.CategoryConflicts
	case containsAny(in.Lower, entityKeywords), containsAny(in.Lower, entityPhrases):
		return model.CategoryEntities
	case len(in.Names) > 0 && len(in.Index.Find(in.Names)) > 0:
		return model.CategoryEntities
	case containsAny(in.Lower, eventKeywords):
		return model.CategoryEvents
	case containsAny(in.Lower, summaryKeywords):
		return model.CategorySummary
	default:
		return model.CategoryGeneral
	}
}

func (r *Router) input(question string, g *model.Graph) Input {
	var entities []model.Entity
	if g != nil {
		entities = g.Entities
	}
	return Input{
		Question: question,
		Lower:    strings.ToLower(strings.TrimSpace(question)),
		Names:    ExtractNames(question),
		Graph:    g,
		Index:    graph.NewIndex(r.matcher, entities),
	}
}

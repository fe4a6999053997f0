// Package conflict finds claims from the knowledge graph that disagree
// with each other
package conflict

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/model"
)

// DefaultClaimLimit bounds how many claims the semantic pass sends
const DefaultClaimLimit = 50

// Config tunes detection
type Config struct {
	// Semantic enables the completion-service pass
	Semantic bool `yaml:"semantic_conflicts" mapstructure:"semantic_conflicts"`

	// ClaimLimit caps the claims sent to the semantic pass
	ClaimLimit int `yaml:"semantic_claim_limit" mapstructure:"semantic_claim_limit"`
}

// Detector recomputes the conflicts of a graph from its claims. The
// heuristic pass always runs; the semantic pass runs when enabled and a
// completer is set, and its findings are appended.
type Detector struct {
	completer llm.Completer
	config    Config
	logger    *zap.Logger
}

// NewDetector creates a detector. A nil completer disables the semantic
// pass regardless of config.
func NewDetector(completer llm.Completer, config Config, logger *zap.Logger) *Detector {
	if config.ClaimLimit <= 0 {
		config.ClaimLimit = DefaultClaimLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		completer: completer,
		config:    config,
		logger:    logger.Named("conflict"),
	}
}

// Detect returns the conflicts among g's claims. It never fails: a broken
// semantic pass leaves only the heuristic findings.
func (d *Detector) Detect(ctx context.Context, g *model.Graph) []model.Conflict {
	conflicts := DetectHeuristic(g.Claims)

	if d.config.Semantic && d.completer != nil && len(g.Claims) >= 2 {
		semantic, err := d.semantic(ctx, g.Claims)
		if err != nil {
			d.logger.Warn("semantic conflict pass failed", zap.Error(err))
		} else {
			conflicts = append(conflicts, semantic...)
		}
	}

	d.logger.Debug("conflicts detected", zap.Int("claims", len(g.Claims)), zap.Int("conflicts", len(conflicts)))
	return conflicts
}

// DetectHeuristic groups claims by case-folded subject and reports every
// subject whose claims say more than one distinct thing. Groups keep the
// order in which their subject first appears.
func DetectHeuristic(claims []model.Claim) []model.Conflict {
	conflicts := []model.Conflict{}
	if len(claims) < 2 {
		return conflicts
	}

	type group struct {
		subject string
		claims  []model.Claim
	}
	var order []string
	groups := make(map[string]*group)

	for _, c := range claims {
		subject := strings.TrimSpace(c.Subject)
		key := strings.ToLower(subject)
		if key == "" {
			continue
		}
		gr, ok := groups[key]
		if !ok {
			gr = &group{subject: subject}
			groups[key] = gr
			order = append(order, key)
		}
		gr.claims = append(gr.claims, c)
	}

	for _, key := range order {
		gr := groups[key]
		if len(gr.claims) < 2 {
			continue
		}

		distinct := make(map[string]struct{}, len(gr.claims))
		for _, c := range gr.claims {
			distinct[strings.ToLower(c.Claim)] = struct{}{}
		}
		if len(distinct) < 2 {
			continue
		}

		conflicts = append(conflicts, model.Conflict{
			Subject:     gr.subject,
			Type:        model.ConflictPotentialInconsistency,
			Claims:      gr.claims,
			Sources:     sourcesOf(gr.claims),
			Description: fmt.Sprintf("Multiple different claims about '%s' found across documents", gr.subject),
		})
	}

	return conflicts
}

// sourcesOf lists the distinct sources of claims in first-seen order
func sourcesOf(claims []model.Claim) []string {
	seen := make(map[string]bool, len(claims))
	sources := []string{}
	for _, c := range claims {
		if c.Source == "" || seen[c.Source] {
			continue
		}
		seen[c.Source] = true
		sources = append(sources, c.Source)
	}
	return sources
}

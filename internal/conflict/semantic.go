package conflict

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/model"
)

const semanticInstruction = `Analyze these claims extracted from investigation documents.
Identify any CONTRADICTIONS or INCONSISTENCIES between claims.

Claims:
`

const semanticAnswerShape = `

Return ONLY a valid JSON array of the conflicts found:
[
    {
        "claim_indices": [index1, index2],
        "type": "contradiction|inconsistency|discrepancy",
        "description": "explanation of the conflict"
    }
]

Use the claim numbers shown above. If no conflicts are found, return an empty array: []
`

type semanticFinding struct {
	ClaimIndices []int              `json:"claim_indices"`
	Type         model.ConflictType `json:"type"`
	Description  string             `json:"description"`
}

// semantic asks the completion service which of the first ClaimLimit
// claims disagree
func (d *Detector) semantic(ctx context.Context, claims []model.Claim) ([]model.Conflict, error) {
	sample := claims
	if len(sample) > d.config.ClaimLimit {
		sample = sample[:d.config.ClaimLimit]
	}

	resp, err := d.completer.Complete(ctx, llm.Request{Prompt: semanticPrompt(sample)})
	if err != nil {
		return nil, fmt.Errorf("semantic conflict call: %w", err)
	}

	findings, err := llm.ParseJSON[[]semanticFinding](resp.Text)
	if err != nil {
		return nil, err
	}

	return resolve(findings, sample), nil
}

func semanticPrompt(claims []model.Claim) string {
	var b strings.Builder
	b.WriteString(semanticInstruction)
	for i, c := range claims {
		source := c.Source
		if source == "" {
			source = "unknown"
		}
		subject := c.Subject
		if subject == "" {
			subject = "unknown"
		}
		fmt.Fprintf(&b, "\n%d. [%s] %s: %s", i+1, source, subject, c.Claim)
		if c.Quote != "" {
			fmt.Fprintf(&b, " (Quote: %q)", clip(c.Quote, 100))
		}
	}
	b.WriteString(semanticAnswerShape)
	return b.String()
}

// resolve maps the 1-based claim numbers of each finding back to claims.
// Out-of-range and repeated numbers are dropped, and a finding left with
// fewer than two claims is discarded.
func resolve(findings []semanticFinding, sample []model.Claim) []model.Conflict {
	var conflicts []model.Conflict
	for _, f := range findings {
		seen := make(map[int]bool, len(f.ClaimIndices))
		var picked []model.Claim
		for _, n := range f.ClaimIndices {
			i := n - 1
			if i < 0 || i >= len(sample) || seen[i] {
				continue
			}
			seen[i] = true
			picked = append(picked, sample[i])
		}
		if len(picked) < 2 {
			continue
		}

		kind := f.Type
		if !kind.Valid() || kind == model.ConflictPotentialInconsistency {
			kind = model.ConflictInconsistency
		}

		conflicts = append(conflicts, model.Conflict{
			Subject:     strings.TrimSpace(picked[0].Subject),
			Type:        kind,
			Claims:      picked,
			Sources:     sourcesOf(picked),
			Description: strings.TrimSpace(f.Description),
		})
	}
	return conflicts
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

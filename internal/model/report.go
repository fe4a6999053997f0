package model

import (
	"fmt"
	"strings"
	"time"
)

// Report is the non-interactive answer to one question, written to disk
// as a single markdown document
type Report struct {
	ID          string         `json:"id"`
	Question    string         `json:"question"`
	Route       Route          `json:"route"`
	Category    Category       `json:"category,omitempty"`
	Answer      string         `json:"answer"`
	Queries     []string       `json:"queries,omitempty"`  // Search focus per worker
	Expanded    bool           `json:"expanded,omitempty"` // Whether the question was decomposed
	Workers     []WorkerOutput `json:"workers,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	Model       string         `json:"model,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Markdown renders the report. The answer is written verbatim; the footer
// records how it was produced.
func (r Report) Markdown(includeFooter bool) string {
	var b strings.Builder

	b.WriteString(strings.TrimRight(r.Answer, "\n"))
	b.WriteString("\n")

	if !includeFooter {
		return b.String()
	}

	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "*Question:* %s\n\n", r.Question)

	route := string(r.Route)
	if r.Category != "" {
		route += " / " + string(r.Category)
	}
	fmt.Fprintf(&b, "*Route:* %s\n\n", route)

	if r.Route == RouteSpecific && len(r.Queries) > 0 {
		if r.Expanded {
			b.WriteString("*Search focus per worker:*\n\n")
			for i, q := range r.Queries {
				fmt.Fprintf(&b, "%d. %s\n", i+1, q)
			}
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "*Workers:* %d (no query expansion)\n\n", len(r.Queries))
		}
	}

	if r.Provider != "" {
		fmt.Fprintf(&b, "*Generated by:* %s/%s at %s\n", r.Provider, r.Model, r.GeneratedAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintf(&b, "*Generated at:* %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	}

	return b.String()
}

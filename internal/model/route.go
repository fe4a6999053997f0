package model

import "encoding/json"

// Route is the outcome of routing a question
type Route string

const (
	RouteExhaustive Route = "EXHAUSTIVE" // Answer from the extraction graph
	RouteSpecific   Route = "SPECIFIC"   // Answer by searching the documents
)

// Category selects which graph renderer answers an exhaustive question
type Category string

const (
	CategoryConflicts Category = "conflicts"
	CategoryEntities  Category = "entities"
	CategoryEvents    Category = "events"
	CategorySummary   Category = "summary"
	CategoryGeneral   Category = "general"
)

// Classification is the routing decision for one question. It is
// recomputed for every question since the graph changes between calls.
type Classification struct {
	Route    Route    `json:"route"`
	Category Category `json:"category,omitempty"` // Only set for exhaustive routes
	Rule     string   `json:"rule"`               // Name of the routing rule that decided
	Names    []string `json:"names,omitempty"`    // Candidate names pulled from the question
	Matches  []string `json:"matches,omitempty"`  // Known entities the names matched
}

// Exhaustive reports whether the question is answered from the graph
func (c Classification) Exhaustive() bool {
	return c.Route == RouteExhaustive
}

// Turn is one message of prior conversation
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// UnmarshalJSON reads the role from "sender" when "role" is absent
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string `json:"role"`
		Sender  string `json:"sender"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Role = raw.Role
	if t.Role == "" {
		t.Role = raw.Sender
	}
	t.Content = raw.Content
	return nil
}

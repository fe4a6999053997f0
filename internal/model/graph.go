package model

import (
	"encoding/json"
	"strings"
	"time"
)

// GraphVersion is the schema version written with every saved graph
const GraphVersion = 1

// UnknownDate marks events the document did not date
const UnknownDate = "unknown"

// EntityType classifies an extracted entity
type EntityType string

const (
	EntityPerson       EntityType = "Person"
	EntityOrganization EntityType = "Organization"
	EntityLocation     EntityType = "Location"
	EntityDate         EntityType = "Date"
	EntityMoney        EntityType = "Money"
	EntityOther        EntityType = "Other"
)

// Entity is a person, organization, place or other named thing found in
// one or more documents
type Entity struct {
	Name        string       `json:"name"`
	Type        EntityType   `json:"type"`
	Description string       `json:"description,omitempty"`
	Mentions    []string     `json:"mentions,omitempty"` // Quotes where the entity appears, no duplicates
	Source      Sources      `json:"source"`
	Provenance  []Provenance `json:"provenance,omitempty"` // Per-document contribution, used to undo a document
}

// Provenance is what a single document contributed to an entity
type Provenance struct {
	Source      string   `json:"source"`
	Description string   `json:"description,omitempty"`
	Mentions    []string `json:"mentions,omitempty"`
}

// Event is something that happened, dated when the document says when
type Event struct {
	Date           string   `json:"date"`
	Description    string   `json:"description"`
	PeopleInvolved []string `json:"people_involved,omitempty"`
	Location       string   `json:"location,omitempty"`
	Source         string   `json:"source"`
}

// Undated reports whether the event has no usable date
func (e Event) Undated() bool {
	return e.Date == "" || strings.EqualFold(e.Date, UnknownDate)
}

// KeyFact is a standalone factual statement from a document
type KeyFact struct {
	Fact   string `json:"fact"`
	Source string `json:"source"`
}

// UnmarshalJSON accepts a bare string as a fact without a source
func (f *KeyFact) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*f = KeyFact{Fact: text}
		return nil
	}

	type plain KeyFact
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = KeyFact(p)
	return nil
}

// Graph is the cumulative extraction over every processed document
type Graph struct {
	Version   int        `json:"version"`
	UpdatedAt time.Time  `json:"updated_at,omitzero"`
	Documents []string   `json:"documents"`
	Entities  []Entity   `json:"entities"`
	Claims    []Claim    `json:"claims"`
	Events    []Event    `json:"events"`
	KeyFacts  []KeyFact  `json:"key_facts"`
	Conflicts []Conflict `json:"conflicts"`
}

// NewGraph returns an empty graph
func NewGraph() *Graph {
	g := &Graph{Version: GraphVersion}
	g.Normalize()
	return g
}

// Normalize replaces nil lists with empty ones so the graph always
// serializes with every field present
func (g *Graph) Normalize() {
	if g.Documents == nil {
		g.Documents = []string{}
	}
	if g.Entities == nil {
		g.Entities = []Entity{}
	}
	if g.Claims == nil {
		g.Claims = []Claim{}
	}
	if g.Events == nil {
		g.Events = []Event{}
	}
	if g.KeyFacts == nil {
		g.KeyFacts = []KeyFact{}
	}
	if g.Conflicts == nil {
		g.Conflicts = []Conflict{}
	}
}

// HasDocument reports whether name has been merged into the graph
func (g *Graph) HasDocument(name string) bool {
	for _, doc := range g.Documents {
		if doc == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the graph
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Version:   g.Version,
		UpdatedAt: g.UpdatedAt,
		Documents: append([]string{}, g.Documents...),
		Claims:    append([]Claim{}, g.Claims...),
		KeyFacts:  append([]KeyFact{}, g.KeyFacts...),
	}

	out.Entities = make([]Entity, len(g.Entities))
	for i, e := range g.Entities {
		out.Entities[i] = e.Clone()
	}

	out.Events = make([]Event, len(g.Events))
	for i, e := range g.Events {
		e.PeopleInvolved = append([]string(nil), e.PeopleInvolved...)
		out.Events[i] = e
	}

	out.Conflicts = make([]Conflict, len(g.Conflicts))
	for i, c := range g.Conflicts {
		c.Claims = append([]Claim(nil), c.Claims...)
		c.Sources = append([]string(nil), c.Sources...)
		out.Conflicts[i] = c
	}

	return out
}

// Clone returns a deep copy of the entity
func (e Entity) Clone() Entity {
	e.Mentions = append([]string(nil), e.Mentions...)
	e.Source = append(Sources(nil), e.Source...)
	prov := make([]Provenance, len(e.Provenance))
	for i, p := range e.Provenance {
		p.Mentions = append([]string(nil), p.Mentions...)
		prov[i] = p
	}
	if len(prov) == 0 {
		prov = nil
	}
	e.Provenance = prov
	return e
}

// Extraction is what a single document yields before it is merged
type Extraction struct {
	Document string    `json:"document"`
	Entities []Entity  `json:"entities"`
	Claims   []Claim   `json:"claims"`
	Events   []Event   `json:"events"`
	KeyFacts []KeyFact `json:"key_facts"`
}

// Summary holds aggregate counts over a graph
type Summary struct {
	Documents int `json:"documents"`
	Entities  int `json:"entities"`
	Claims    int `json:"claims"`
	Events    int `json:"events"`
	KeyFacts  int `json:"key_facts"`
	Conflicts int `json:"conflicts"`
}

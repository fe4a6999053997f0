package graph

import (
	"github.com/ppiankov/casefile/internal/model"
)

// Merge folds one document's extraction into g. Entities with the same
// name and type are merged; claims, events and key facts are appended.
// Conflicts are left untouched and must be recomputed by the caller.
func Merge(g *model.Graph, ext model.Extraction) {
	g.Normalize()
	doc := ext.Document

	if doc != "" && !g.HasDocument(doc) {
		g.Documents = append(g.Documents, doc)
	}

	positions := make(map[string]int, len(g.Entities))
	for i, e := range g.Entities {
		positions[entityKey(e)] = i
	}

	for _, incoming := range ext.Entities {
		source := doc
		if source == "" && len(incoming.Source) > 0 {
			source = incoming.Source[0]
		}
		contribution := model.Provenance{
			Source:      source,
			Description: incoming.Description,
			Mentions:    dedupeStrings(incoming.Mentions),
		}

		key := entityKey(incoming)
		if i, ok := positions[key]; ok {
			existing := &g.Entities[i]
			absorb(existing, contribution)
			continue
		}

		fresh := model.Entity{
			Name:        incoming.Name,
			Type:        incoming.Type,
			Description: incoming.Description,
			Mentions:    contribution.Mentions,
			Source:      model.Sources(nil).Add(source),
			Provenance:  []model.Provenance{contribution},
		}
		g.Entities = append(g.Entities, fresh)
		positions[key] = len(g.Entities) - 1
	}

	for _, c := range ext.Claims {
		if c.Source == "" {
			c.Source = doc
		}
		g.Claims = append(g.Claims, c)
	}
	for _, e := range ext.Events {
		if e.Source == "" {
			e.Source = doc
		}
		g.Events = append(g.Events, e)
	}
	for _, f := range ext.KeyFacts {
		if f.Source == "" {
			f.Source = doc
		}
		g.KeyFacts = append(g.KeyFacts, f)
	}
}

// absorb adds one document's contribution to an existing entity
func absorb(e *model.Entity, p model.Provenance) {
	e.Mentions = unionStrings(e.Mentions, p.Mentions)
	e.Source = e.Source.Add(p.Source)
	if len(p.Description) > len(e.Description) {
		e.Description = p.Description
	}

	absorbRecord(e, p)
}

// Remove retracts every contribution of doc from g and clears the
// conflicts. It reports whether doc was part of the graph.
func Remove(g *model.Graph, doc string) bool {
	g.Normalize()
	found := g.HasDocument(doc)

	docs := g.Documents[:0]
	for _, d := range g.Documents {
		if d != doc {
			docs = append(docs, d)
		}
	}
	g.Documents = docs

	entities := g.Entities[:0]
	for _, e := range g.Entities {
		if kept, ok := retract(e, doc); ok {
			entities = append(entities, kept)
		}
	}
	g.Entities = entities

	claims := g.Claims[:0]
	for _, c := range g.Claims {
		if c.Source != doc {
			claims = append(claims, c)
		}
	}
	g.Claims = claims

	events := g.Events[:0]
	for _, e := range g.Events {
		if e.Source != doc {
			events = append(events, e)
		}
	}
	g.Events = events

	facts := g.KeyFacts[:0]
	for _, f := range g.KeyFacts {
		if f.Source != doc {
			facts = append(facts, f)
		}
	}
	g.KeyFacts = facts

	g.Conflicts = []model.Conflict{}
	return found
}

// retract removes doc from one entity. The entity is dropped when nothing
// else contributed to it. Entities written before provenance was recorded
// only lose the source.
func retract(e model.Entity, doc string) (model.Entity, bool) {
	if !e.Source.Contains(doc) {
		return e, true
	}
	if e.Source.Only(doc) {
		return e, false
	}

	if len(e.Provenance) == 0 {
		e.Source = e.Source.Remove(doc)
		return e, true
	}

	var kept []model.Provenance
	for _, p := range e.Provenance {
		if p.Source != doc {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		e.Source = e.Source.Remove(doc)
		e.Provenance = nil
		return e, true
	}

	rebuilt := model.Entity{
		Name:       e.Name,
		Type:       e.Type,
		Provenance: kept,
	}
	for _, p := range kept {
		rebuilt.Mentions = unionStrings(rebuilt.Mentions, p.Mentions)
		rebuilt.Source = rebuilt.Source.Add(p.Source)
		if len(p.Description) > len(rebuilt.Description) {
			rebuilt.Description = p.Description
		}
	}
	return rebuilt, true
}

// Deduplicate merges entities of the same type whose names match. The
// longer name and the longer description win; mentions, sources and
// provenance are unioned. The first occurrence keeps its position.
func Deduplicate(entities []model.Entity, m *Matcher) []model.Entity {
	merged := make([]model.Entity, 0, len(entities))

	for _, e := range entities {
		target := -1
		for i := range merged {
			if merged[i].Type == e.Type && m.Same(e.Name, merged[i].Name) {
				target = i
				break
			}
		}

		if target < 0 {
			merged = append(merged, e.Clone())
			continue
		}

		existing := &merged[target]
		existing.Mentions = unionStrings(existing.Mentions, e.Mentions)
		for _, src := range e.Source {
			existing.Source = existing.Source.Add(src)
		}
		for _, p := range e.Provenance {
			absorbRecord(existing, p)
		}
		if len(e.Name) > len(existing.Name) {
			existing.Name = e.Name
		}
		if len(e.Description) > len(existing.Description) {
			existing.Description = e.Description
		}
	}

	return merged
}

func absorbRecord(e *model.Entity, p model.Provenance) {
	for i := range e.Provenance {
		if e.Provenance[i].Source == p.Source {
			rec := &e.Provenance[i]
			rec.Mentions = unionStrings(rec.Mentions, p.Mentions)
			if len(p.Description) > len(rec.Description) {
				rec.Description = p.Description
			}
			return
		}
	}
	e.Provenance = append(e.Provenance, p)
}

// Summarize counts what the graph holds
func Summarize(g *model.Graph) model.Summary {
	return model.Summary{
		Documents: len(g.Documents),
		Entities:  len(g.Entities),
		Claims:    len(g.Claims),
		Events:    len(g.Events),
		KeyFacts:  len(g.KeyFacts),
		Conflicts: len(g.Conflicts),
	}
}

func entityKey(e model.Entity) string {
	return mergeKey(e.Name) + "\x00" + mergeKey(string(e.Type))
}

func unionStrings(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range base {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range extra {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func dedupeStrings(in []string) []string {
	return unionStrings(nil, in)
}

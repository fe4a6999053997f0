package answer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ppiankov/casefile/internal/graph"
	"github.com/ppiankov/casefile/internal/model"
)

const (
	quoteLimit      = 200
	mentionLimit    = 300
	maxMentions     = 5
	maxClaims       = 10
	maxEvents       = 5
	maxKeyFacts     = 20
	maxAlternatives = 15
)

// NoDocuments is returned for every question before anything was extracted
const NoDocuments = "No documents have been processed yet. Please upload documents first."

func renderConflicts(g *model.Graph) string {
	if len(g.Conflicts) == 0 {
		if len(g.Claims) == 0 {
			return "No claims were extracted from the documents to analyze for inconsistencies."
		}
		return fmt.Sprintf("## No Inconsistencies Detected\n\n"+
			"Analyzed %d claims across %d document(s). "+
			"No direct contradictions or inconsistencies were identified.\n\n"+
			"_Note: This is based on extracted claims. For deeper analysis, ask about a particular topic._",
			len(g.Claims), len(g.Documents))
	}

	var b strings.Builder
	b.WriteString("## Detected Inconsistencies & Conflicts\n\n")
	fmt.Fprintf(&b, "Found **%d** potential inconsistencies across the documents:\n\n", len(g.Conflicts))

	for i, c := range g.Conflicts {
		subject := c.Subject
		if subject == "" {
			subject = "Unknown Subject"
		}
		kind := string(c.Type)
		if kind == "" {
			kind = string(model.ConflictPotentialInconsistency)
		}

		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, titleCase(subject))
		fmt.Fprintf(&b, "**Type:** %s\n\n", titleCase(strings.ReplaceAll(kind, "_", " ")))
		if c.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", c.Description)
		}

		b.WriteString("**Conflicting Claims:**\n\n")
		for _, claim := range c.Claims {
			fmt.Fprintf(&b, "**%s:** %s\n\n", orDefault(claim.Source, "Unknown source"), orDefault(claim.Claim, "No claim text"))
			if claim.Quote != "" {
				fmt.Fprintf(&b, "> \"%s\"\n\n", clip(claim.Quote, quoteLimit))
			}
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

// renderEntities answers an entity question. Named entities the graph
// does not know get an explicit "not found" with the known people listed
// instead of a guess.
func renderEntities(question string, names []string, matches []model.Entity, g *model.Graph) (string, bool) {
	if len(names) > 0 {
		if len(matches) > 0 {
			return renderDossiers(matches, g)
		}
		return renderNotFound(names, g.Entities), true
	}

	lower := strings.ToLower(question)
	filtered, label := filterByType(lower, g.Entities)
	if len(filtered) == 0 {
		return fmt.Sprintf("No %s were identified in the documents.", strings.ToLower(label)), true
	}

	seen := make(map[string]bool)
	var unique []model.Entity
	for _, e := range filtered {
		key := strings.ToLower(e.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, e)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s Mentioned in Documents\n\n", label)
	fmt.Fprintf(&b, "Found **%d** unique %s:\n\n", len(unique), strings.ToLower(label))

	singular := strings.TrimSuffix(strings.ToLower(label), "s")
	for _, e := range unique {
		fmt.Fprintf(&b, "### %s", e.Name)
		if e.Type != "" && strings.ToLower(string(e.Type)) != singular {
			fmt.Fprintf(&b, " (%s)", e.Type)
		}
		b.WriteString("\n\n")
		if e.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", e.Description)
		}
		if e.Source.Multiple() {
			fmt.Fprintf(&b, "*Sources: %s*\n\n", e.Source)
		} else {
			fmt.Fprintf(&b, "*Source: %s*\n\n", orDefault(e.Source.String(), "Unknown source"))
		}
	}
	return b.String(), true
}

func filterByType(lower string, entities []model.Entity) ([]model.Entity, string) {
	var want model.EntityType
	label := "Entities"
	switch {
	case containsAny(lower, "people", "person", "everyone", "names", "name", "individuals", "suspects", "witnesses", "victims"):
		want, label = model.EntityPerson, "People"
	case containsAny(lower, "organization", "compan"):
		want, label = model.EntityOrganization, "Organizations"
	case containsAny(lower, "location", "place"):
		want, label = model.EntityLocation, "Locations"
	}

	if want == "" {
		return entities, label
	}
	var out []model.Entity
	for _, e := range entities {
		if strings.EqualFold(string(e.Type), string(want)) {
			out = append(out, e)
		}
	}
	return out, label
}

func renderNotFound(names []string, entities []model.Entity) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}

	var b strings.Builder
	b.WriteString("## No Information Found\n\n")
	fmt.Fprintf(&b, "I searched the documents but could not find any information about %s.\n\n", strings.Join(quoted, ", "))
	b.WriteString("The following people ARE mentioned in the documents:\n\n")

	listed := 0
	for _, e := range entities {
		if listed == maxAlternatives {
			break
		}
		if strings.EqualFold(string(e.Type), string(model.EntityPerson)) {
			fmt.Fprintf(&b, "- **%s**\n", e.Name)
			listed++
		}
	}
	if listed == 0 {
		b.WriteString("- *(no people were extracted)*\n")
	}

	b.WriteString("\n*If you're looking for someone specific, check the spelling or try a different name.*")
	return b.String()
}

func renderDossiers(matches []model.Entity, g *model.Graph) (string, bool) {
	var b strings.Builder

	for _, e := range matches {
		b.WriteString("## " + e.Name)
		if e.Type != "" {
			fmt.Fprintf(&b, " (%s)", e.Type)
		}
		b.WriteString("\n\n")

		if e.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", e.Description)
		}
		if e.Source.Multiple() {
			fmt.Fprintf(&b, "**Sources:** %s\n\n", e.Source)
		} else {
			fmt.Fprintf(&b, "**Source:** %s\n\n", orDefault(e.Source.String(), "Unknown source"))
		}

		if len(e.Mentions) > 0 {
			b.WriteString("### Direct Mentions\n\n")
			for _, m := range head(e.Mentions, maxMentions) {
				if m != "" {
					fmt.Fprintf(&b, "> \"%s\"\n\n", clip(m, mentionLimit))
				}
			}
		}

		name := graph.Normalize(e.Name)
		words := strings.Fields(name)

		claims := relatedClaims(name, words, g.Claims)
		if len(claims) > 0 {
			b.WriteString("### Related Claims\n\n")
			for _, c := range head(claims, maxClaims) {
				fmt.Fprintf(&b, "**%s**\n\n", c.Claim)
				if c.Quote != "" {
					fmt.Fprintf(&b, "> \"%s\"\n\n", clip(c.Quote, quoteLimit))
				}
				fmt.Fprintf(&b, "*Source: %s*\n\n---\n\n", orDefault(c.Source, "Unknown"))
			}
		}

		events := relatedEvents(name, words, g.Events)
		if len(events) > 0 {
			b.WriteString("### Related Events\n\n")
			for _, ev := range head(events, maxEvents) {
				fmt.Fprintf(&b, "**%s**\n\n%s\n\n*Source: %s*\n\n---\n\n",
					orDefault(ev.Date, "Unknown date"), ev.Description, orDefault(ev.Source, "Unknown"))
			}
		}
	}

	if b.Len() == 0 {
		return "No information found for the specified entity.", false
	}
	return b.String(), true
}

// relatedClaims matches on the full normalized name appearing in the
// subject or claim text, or any name word appearing as a word there
func relatedClaims(name string, words []string, claims []model.Claim) []model.Claim {
	var out []model.Claim
	for _, c := range claims {
		text := graph.Normalize(c.Subject) + " " + graph.Normalize(c.Claim)
		if mentions(text, name, words) {
			out = append(out, c)
		}
	}
	return out
}

func relatedEvents(name string, words []string, events []model.Event) []model.Event {
	var out []model.Event
	for _, ev := range events {
		text := graph.Normalize(ev.Description)
		for _, p := range ev.PeopleInvolved {
			text += " " + graph.Normalize(p)
		}
		if mentions(text, name, words) {
			out = append(out, ev)
		}
	}
	return out
}

func mentions(text, name string, words []string) bool {
	if name != "" && strings.Contains(text, name) {
		return true
	}
	present := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		present[w] = true
	}
	for _, w := range words {
		if present[w] {
			return true
		}
	}
	return false
}

func renderEvents(g *model.Graph) string {
	if len(g.Events) == 0 {
		return "No dated events were identified in the documents."
	}

	events := append([]model.Event(nil), g.Events...)
	sort.SliceStable(events, func(i, j int) bool {
		ui, uj := events[i].Undated(), events[j].Undated()
		if ui != uj {
			return !ui
		}
		if ui {
			return false
		}
		return events[i].Date < events[j].Date
	})

	var b strings.Builder
	b.WriteString("## Timeline of Events\n\n")
	fmt.Fprintf(&b, "Found **%d** events:\n\n", len(events))

	for _, ev := range events {
		fmt.Fprintf(&b, "### %s\n\n", orDefault(ev.Date, "Unknown date"))
		fmt.Fprintf(&b, "%s\n\n", orDefault(ev.Description, "No description"))
		if len(ev.PeopleInvolved) > 0 {
			fmt.Fprintf(&b, "- **People involved:** %s\n", strings.Join(ev.PeopleInvolved, ", "))
		}
		if ev.Location != "" {
			fmt.Fprintf(&b, "- **Location:** %s\n", ev.Location)
		}
		fmt.Fprintf(&b, "\n*Source: %s*\n\n---\n\n", orDefault(ev.Source, "Unknown source"))
	}
	return b.String()
}

func renderSummary(g *model.Graph) string {
	s := graph.Summarize(g)

	var b strings.Builder
	b.WriteString("## Document Summary\n\n")
	b.WriteString("### Overview\n\n")
	fmt.Fprintf(&b, "- **Documents Analyzed:** %d\n", s.Documents)
	fmt.Fprintf(&b, "- **Entities Identified:** %d\n", s.Entities)
	fmt.Fprintf(&b, "- **Claims Extracted:** %d\n", s.Claims)
	fmt.Fprintf(&b, "- **Events Found:** %d\n", s.Events)
	fmt.Fprintf(&b, "- **Potential Conflicts:** %d\n\n", s.Conflicts)

	if len(g.KeyFacts) > 0 {
		b.WriteString("### Key Facts\n\n")
		for _, f := range head(g.KeyFacts, maxKeyFacts) {
			fmt.Fprintf(&b, "- %s *(%s)*\n", f.Fact, orDefault(f.Source, "unknown"))
		}
		b.WriteString("\n")
		if extra := len(g.KeyFacts) - maxKeyFacts; extra > 0 {
			fmt.Fprintf(&b, "*...and %d more facts*\n\n", extra)
		}
	}

	if len(g.Entities) > 0 {
		b.WriteString("### Entity Breakdown\n\n")
		for _, tc := range countTypes(g.Entities) {
			fmt.Fprintf(&b, "- **%s:** %d\n", tc.kind, tc.count)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type typeCount struct {
	kind  model.EntityType
	count int
}

// countTypes orders by descending count; ties keep first-seen order
func countTypes(entities []model.Entity) []typeCount {
	var counts []typeCount
	pos := make(map[model.EntityType]int)
	for _, e := range entities {
		kind := e.Type
		if kind == "" {
			kind = model.EntityOther
		}
		if i, ok := pos[kind]; ok {
			counts[i].count++
			continue
		}
		pos[kind] = len(counts)
		counts = append(counts, typeCount{kind: kind, count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].count > counts[j].count
	})
	return counts
}

func renderGeneral(g *model.Graph) string {
	s := graph.Summarize(g)

	var b strings.Builder
	b.WriteString("## Extracted Data Overview\n\n")
	fmt.Fprintf(&b, "I have preprocessed data from **%d** document(s):\n\n", s.Documents)
	fmt.Fprintf(&b, "- **%d** entities (people, organizations, locations)\n", s.Entities)
	fmt.Fprintf(&b, "- **%d** claims/statements\n", s.Claims)
	fmt.Fprintf(&b, "- **%d** events\n", s.Events)
	fmt.Fprintf(&b, "- **%d** potential conflicts detected\n\n", s.Conflicts)

	b.WriteString("For more specific information, try asking:\n")
	b.WriteString("- \"List all people mentioned\"\n")
	b.WriteString("- \"Show me the timeline of events\"\n")
	b.WriteString("- \"Find all inconsistencies\"\n")
	b.WriteString("- \"Give me a summary of all documents\"\n")
	return b.String()
}

// clip cuts s to n runes and marks the cut
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// titleCase uppercases the first letter of every word and lowercases the rest
func titleCase(s string) string {
	var b strings.Builder
	start := true
	for _, r := range s {
		if unicode.IsLetter(r) {
			if start {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			start = false
			continue
		}
		b.WriteRune(r)
		start = true
	}
	return b.String()
}

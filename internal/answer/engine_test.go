package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/model"
)

type fakeCompleter struct {
	text    string
	err     error
	prompts []llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.prompts = append(f.prompts, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text}, nil
}

func caseGraph() *model.Graph {
	g := model.NewGraph()
	g.Documents = []string{"interview.txt", "report.txt"}
	g.Entities = []model.Entity{
		{Name: "Amanda", Type: model.EntityPerson, Description: "Night guard", Mentions: []string{"Amanda was on shift"}, Source: model.Sources{"interview.txt", "report.txt"}},
		{Name: "Detective Roman", Type: model.EntityPerson, Source: model.Sources{"report.txt"}},
		{Name: "Acme Storage", Type: model.EntityOrganization, Source: model.Sources{"report.txt"}},
		{Name: "acme storage", Type: model.EntityOrganization, Source: model.Sources{"interview.txt"}},
	}
	g.Claims = []model.Claim{
		{Subject: "Amanda", Claim: "left at midnight", Quote: strings.Repeat("q", 250), Source: "interview.txt"},
		{Subject: "the van", Claim: "was blue", Source: "report.txt"},
	}
	g.Events = []model.Event{
		{Date: model.UnknownDate, Description: "call received", Source: "report.txt"},
		{Date: "2021-05-02", Description: "Amanda clocked out", Source: "interview.txt"},
		{Date: "", Description: "alarm tested", Source: "report.txt"},
		{Date: "2021-05-01", Description: "van seen", PeopleInvolved: []string{"Detective Roman"}, Location: "Lot B", Source: "report.txt"},
	}
	return g
}

func TestRender_NoDocuments(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	text, ok := e.Render("List all people", model.NewGraph(), model.CategoryEntities)
	assert.False(t, ok)
	assert.Equal(t, NoDocuments, text)

	text, ok = e.Render("List all people", nil, model.CategoryEntities)
	assert.False(t, ok)
	assert.Equal(t, NoDocuments, text)
}

func TestRender_Conflicts(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	g := caseGraph()
	text, _ := e.Render("conflicts?", g, model.CategoryConflicts)
	assert.Contains(t, text, "No Inconsistencies Detected")
	assert.Contains(t, text, "Analyzed 2 claims across 2 document(s)")

	g.Claims = nil
	text, _ = e.Render("conflicts?", g, model.CategoryConflicts)
	assert.Equal(t, "No claims were extracted from the documents to analyze for inconsistencies.", text)

	g = caseGraph()
	g.Conflicts = []model.Conflict{{
		Subject:     "the van",
		Type:        model.ConflictPotentialInconsistency,
		Description: "colors differ",
		Claims:      []model.Claim{g.Claims[0], g.Claims[1]},
	}}
	text, _ = e.Render("conflicts?", g, model.CategoryConflicts)
	assert.Contains(t, text, "### 1. The Van")
	assert.Contains(t, text, "**Type:** Potential Inconsistency")
	assert.Contains(t, text, "**interview.txt:** left at midnight")
	assert.Contains(t, text, "> \""+strings.Repeat("q", 200)+"...\"")
}

func TestRender_EntityDossier(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	text, ok := e.Render("Who is Amanda Lynn Plasse?", caseGraph(), model.CategoryEntities)
	require.True(t, ok)
	assert.Contains(t, text, "## Amanda (Person)")
	assert.Contains(t, text, "**Sources:** interview.txt, report.txt")
	assert.Contains(t, text, "### Direct Mentions")
	assert.Contains(t, text, "**left at midnight**")
	assert.NotContains(t, text, "was blue")
	assert.Contains(t, text, "Amanda clocked out")
	assert.NotContains(t, text, "van seen")
}

func TestRender_EntityNotFoundListsPeople(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	text, ok := e.Render("Tell me about John Doe", caseGraph(), model.CategoryEntities)
	require.True(t, ok)
	assert.Contains(t, text, "## No Information Found")
	assert.Contains(t, text, `"John Doe"`)
	assert.Contains(t, text, "- **Amanda**")
	assert.Contains(t, text, "- **Detective Roman**")
	assert.NotContains(t, text, "Acme Storage")
}

func TestRender_EntityNotFoundCapsAlternatives(t *testing.T) {
	g := caseGraph()
	g.Entities = nil
	for i := 0; i < 20; i++ {
		g.Entities = append(g.Entities, model.Entity{Name: fmt.Sprintf("Person %02d", i), Type: model.EntityPerson})
	}

	text, _ := NewEngine(nil, nil, nil).Render("Who is Zed Quill?", g, model.CategoryEntities)
	assert.Equal(t, maxAlternatives, strings.Count(text, "- **Person"))
}

func TestRender_EntityListing(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	text, _ := e.Render("list all organizations", caseGraph(), model.CategoryEntities)
	assert.Contains(t, text, "## Organizations Mentioned in Documents")
	assert.Contains(t, text, "Found **1** unique organizations")

	text, _ = e.Render("list all entities", caseGraph(), model.CategoryEntities)
	assert.Contains(t, text, "Found **3** unique entities")
	assert.Contains(t, text, "### Acme Storage (Organization)")

	text, _ = e.Render("list all locations", caseGraph(), model.CategoryEntities)
	assert.Equal(t, "No locations were identified in the documents.", text)
}

func TestRender_EventsOrdersUndatedLast(t *testing.T) {
	text, _ := NewEngine(nil, nil, nil).Render("timeline", caseGraph(), model.CategoryEvents)

	order := []string{"van seen", "Amanda clocked out", "call received", "alarm tested"}
	last := -1
	for _, s := range order {
		i := strings.Index(text, s)
		require.Greater(t, i, last, s)
		last = i
	}
	assert.Contains(t, text, "- **People involved:** Detective Roman")
	assert.Contains(t, text, "- **Location:** Lot B")
}

func TestRender_SummaryTruncatesKeyFacts(t *testing.T) {
	g := caseGraph()
	for i := 0; i < 23; i++ {
		g.KeyFacts = append(g.KeyFacts, model.KeyFact{Fact: fmt.Sprintf("fact %d", i), Source: "report.txt"})
	}

	text, _ := NewEngine(nil, nil, nil).Render("summarize", g, model.CategorySummary)
	assert.Contains(t, text, "- **Documents Analyzed:** 2")
	assert.Contains(t, text, "fact 19 *(report.txt)*")
	assert.NotContains(t, text, "fact 20")
	assert.Contains(t, text, "*...and 3 more facts*")

	person := strings.Index(text, "- **Person:** 2")
	org := strings.Index(text, "- **Organization:** 2")
	require.GreaterOrEqual(t, person, 0)
	assert.Greater(t, org, person, "ties keep first-seen order")
}

func TestRender_General(t *testing.T) {
	text, ok := NewEngine(nil, nil, nil).Render("how many documents", caseGraph(), model.CategoryGeneral)
	assert.True(t, ok)
	assert.Contains(t, text, "**2** document(s)")
	assert.Contains(t, text, "List all people mentioned")
}

func TestAnswer_Synthesizes(t *testing.T) {
	f := &fakeCompleter{text: "## Amanda\n\nNight guard."}
	e := NewEngine(nil, f, nil)

	res := e.Answer(context.Background(), "Who is Amanda?", caseGraph(), "")
	assert.Equal(t, model.CategoryEntities, res.Category)
	assert.True(t, res.Synthesized)
	assert.Equal(t, "## Amanda\n\nNight guard.", res.Text)

	require.Len(t, f.prompts, 1)
	assert.Contains(t, f.prompts[0].System, "ONLY restate information")
	assert.Contains(t, f.prompts[0].Prompt, "Query Category: entities")
	assert.Contains(t, f.prompts[0].Prompt, "## Amanda (Person)")
}

func TestAnswer_SynthesisFailureReturnsTemplate(t *testing.T) {
	e := NewEngine(nil, &fakeCompleter{err: errors.New("boom")}, nil)

	res := e.Answer(context.Background(), "timeline", caseGraph(), model.CategoryEvents)
	assert.False(t, res.Synthesized)
	assert.True(t, res.OK)
	assert.True(t, strings.HasPrefix(res.Text, "## Timeline of Events"))
}

func TestAnswer_NoDocumentsSkipsSynthesis(t *testing.T) {
	f := &fakeCompleter{text: "invented"}
	res := NewEngine(nil, f, nil).Answer(context.Background(), "list all people", model.NewGraph(), "")

	assert.Equal(t, NoDocuments, res.Text)
	assert.False(t, res.OK)
	assert.Empty(t, f.prompts)
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "The Van", titleCase("the VAN"))
	assert.Equal(t, "O'Brien", titleCase("o'brien"))
}

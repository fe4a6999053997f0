package investigate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/casefile/internal/coa"
	"github.com/ppiankov/casefile/internal/conflict"
	"github.com/ppiankov/casefile/internal/corpus"
	"github.com/ppiankov/casefile/internal/extract"
	"github.com/ppiankov/casefile/internal/graph"
	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/model"
	"github.com/ppiankov/casefile/internal/progress"
	"github.com/ppiankov/casefile/internal/state"
)

type fakeExtractor struct {
	results map[string]model.Extraction
	errs    map[string]error
}

func (f *fakeExtractor) Extract(ctx context.Context, docName, text string) (model.Extraction, error) {
	if err := f.errs[docName]; err != nil {
		return model.Extraction{Document: docName}, err
	}
	return f.results[docName], nil
}

type fakeCompleter struct {
	text string
	err  error
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text}, nil
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, req llm.SearchRequest) (*llm.Response, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req.Query)
	f.mu.Unlock()
	return &llm.Response{Text: `{"findings": ["the van was blue"]}`}, nil
}

// fakeCorpus implements corpus.API with everything indexed at once
type fakeCorpus struct {
	mu      sync.Mutex
	created int
	files   []string
}

func (f *fakeCorpus) CreateVectorStore(ctx context.Context, req openai.VectorStoreRequest) (openai.VectorStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return openai.VectorStore{ID: fmt.Sprintf("vs_%d", f.created), Name: req.Name}, nil
}

func (f *fakeCorpus) RetrieveVectorStore(ctx context.Context, id string) (openai.VectorStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vs := openai.VectorStore{ID: id}
	vs.FileCounts.Completed = len(f.files)
	vs.FileCounts.Total = len(f.files)
	return vs, nil
}

func (f *fakeCorpus) DeleteVectorStore(ctx context.Context, id string) (openai.VectorStoreDeleteResponse, error) {
	return openai.VectorStoreDeleteResponse{ID: id, Deleted: true}, nil
}

func (f *fakeCorpus) CreateFile(ctx context.Context, req openai.FileRequest) (openai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "file_" + req.FileName
	f.files = append(f.files, id)
	return openai.File{ID: id}, nil
}

func (f *fakeCorpus) DeleteFile(ctx context.Context, id string) error { return nil }

func (f *fakeCorpus) CreateVectorStoreFile(ctx context.Context, vsID string, req openai.VectorStoreFileRequest) (openai.VectorStoreFile, error) {
	return openai.VectorStoreFile{ID: req.FileID}, nil
}

func (f *fakeCorpus) DeleteVectorStoreFile(ctx context.Context, vsID, fileID string) error { return nil }

func (f *fakeCorpus) ListVectorStoreFiles(ctx context.Context, vsID string, p openai.Pagination) (openai.VectorStoreFilesList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list openai.VectorStoreFilesList
	for _, id := range f.files {
		list.VectorStoreFiles = append(list.VectorStoreFiles, openai.VectorStoreFile{ID: id, Status: "completed"})
	}
	return list, nil
}

func caseExtractions() map[string]model.Extraction {
	return map[string]model.Extraction{
		"a.txt": {
			Document: "a.txt",
			Entities: []model.Entity{{Name: "John Smith", Type: model.EntityPerson, Description: "CFO", Source: model.Sources{"a.txt"}}},
			Claims:   []model.Claim{{Subject: "John Smith", Claim: "was at the office at midnight", Source: "a.txt"}},
			Events:   []model.Event{{Date: "2023-03-01", Description: "Van found", Source: "a.txt"}},
		},
		"b.txt": {
			Document: "b.txt",
			Entities: []model.Entity{{Name: "Acme Corp", Type: model.EntityOrganization, Source: model.Sources{"b.txt"}}},
			Claims:   []model.Claim{{Subject: "John Smith", Claim: "was at home all night", Source: "b.txt"}},
		},
	}
}

type fixture struct {
	svc       *Service
	state     state.Store
	searcher  *fakeSearcher
	corpusAPI *fakeCorpus
	extractor *fakeExtractor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewFileStore(filepath.Join(t.TempDir(), ".state.json"))
	store := graph.NewStore(graph.NewMemoryRepository(), conflict.NewDetector(nil, conflict.Config{}, nil), nil, nil)
	searcher := &fakeSearcher{}
	completer := &fakeCompleter{text: "John Smith gave two different accounts of that night."}
	api := &fakeCorpus{}
	extractor := &fakeExtractor{results: caseExtractions(), errs: map[string]error{}}

	svc := New(Deps{
		Store:        store,
		Orchestrator: coa.NewOrchestrator(searcher, nil, coa.DefaultPrompts(), coa.Config{Workers: 2}, nil),
		Synthesizer:  coa.NewSynthesizer(completer, nil, "", nil),
		Extractor:    extractor,
		Corpus:       corpus.NewManager(api, corpus.Config{PollAttempts: 1}, nil),
		State:        st,
	}, Config{StreamChunk: 50, Provider: "openai", Model: "gpt-4o-mini"}, nil)

	return &fixture{svc: svc, state: st, searcher: searcher, corpusAPI: api, extractor: extractor}
}

func textDocs(names ...string) []Document {
	docs := make([]Document, len(names))
	for i, n := range names {
		docs[i] = Document{Document: extract.Document{Name: n, Text: "text of " + n}}
	}
	return docs
}

func TestAsk_NothingIngested(t *testing.T) {
	f := newFixture(t)
	rec := &progress.Recorder{}

	_, err := f.svc.Ask(context.Background(), AskRequest{Question: "List all people"}, rec)
	assert.ErrorIs(t, err, ErrNoCorpus)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, progress.TypeError, events[0].Type)
	assert.Equal(t, "No documents uploaded. Please upload documents first.", events[0].Content)
}

func TestIngest_GraphOnly(t *testing.T) {
	f := newFixture(t)
	f.extractor.errs["broken.txt"] = fmt.Errorf("extract broken.txt: %w", llm.ErrMalformedOutput)
	f.extractor.errs["down.txt"] = errors.New("service unavailable")

	res, err := f.svc.Ingest(context.Background(), textDocs("a.txt", "b.txt", "broken.txt", "down.txt"))
	require.NoError(t, err)

	assert.Empty(t, res.CorpusID)
	require.Len(t, res.Documents, 4)
	assert.True(t, res.Documents[0].Merged)
	assert.Equal(t, 1, res.Documents[0].Claims)
	assert.True(t, res.Documents[2].Merged, "malformed extraction still lists the document")
	assert.NotEmpty(t, res.Documents[2].Error)
	assert.False(t, res.Documents[3].Merged)

	g := f.svc.Graph(context.Background())
	assert.Equal(t, []string{"a.txt", "b.txt", "broken.txt"}, g.Documents)
	assert.Equal(t, model.Summary{Documents: 3, Entities: 2, Claims: 2, Events: 1, Conflicts: 1}, res.Summary)

	_, err = f.state.Get(context.Background(), state.KeyLastIngest)
	assert.NoError(t, err)
}

func TestIngest_Empty(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestIngest_UploadsToCorpus(t *testing.T) {
	f := newFixture(t)
	docs := textDocs("a.txt", "b.txt")
	docs[0].Path = "docs/a.txt"

	res, err := f.svc.Ingest(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, "vs_1", res.CorpusID)
	assert.Equal(t, "file_a.txt", res.Documents[0].FileID)
	assert.Empty(t, res.Documents[1].FileID)

	id, err := f.svc.CorpusID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "vs_1", id)

	// the active corpus is reused
	_, err = f.svc.Ingest(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 1, f.corpusAPI.created)

	status := f.svc.Status(context.Background())
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, 2, status.Corpus.Total)
}

func TestIngest_DocumentWithoutText(t *testing.T) {
	f := newFixture(t)
	docs := textDocs("a.txt", "scan.pdf")
	docs[1].Text = ""
	docs[1].Path = "docs/scan.pdf"

	res, err := f.svc.Ingest(context.Background(), docs)
	require.NoError(t, err)

	assert.True(t, res.Documents[0].Merged)
	assert.False(t, res.Documents[1].Merged)
	assert.Equal(t, "no text to extract", res.Documents[1].Error)
	assert.Equal(t, "file_scan.pdf", res.Documents[1].FileID, "still searchable through the corpus")
	assert.Equal(t, []string{"a.txt"}, f.svc.Graph(context.Background()).Documents)
}

func TestIngest_NoExtractor(t *testing.T) {
	st := state.NewFileStore(filepath.Join(t.TempDir(), ".state.json"))
	store := graph.NewStore(graph.NewMemoryRepository(), nil, nil, nil)
	svc := New(Deps{Store: store, State: st}, Config{}, nil)

	res, err := svc.Ingest(context.Background(), textDocs("a.txt"))
	require.ErrorIs(t, err, llm.ErrNotConfigured)
	assert.False(t, res.Documents[0].Merged)
	assert.Empty(t, svc.Graph(context.Background()).Documents)

	_, err = st.Get(context.Background(), state.KeyLastIngest)
	assert.ErrorIs(t, err, state.ErrNotFound, "a failed ingest is not recorded")

	// nothing to extract needs no extractor
	docs := textDocs("scan.pdf")
	docs[0].Text = ""
	res, err = svc.Ingest(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, "no text to extract", res.Documents[0].Error)
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	docs := textDocs("a.txt", "b.txt")
	docs[0].Path = "docs/a.txt"
	docs[1].Path = "docs/b.txt"

	_, err := f.svc.Ingest(ctx, docs)
	require.NoError(t, err)

	removed, err := f.svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Empty(t, f.svc.Graph(ctx).Documents)

	id, err := f.svc.CorpusID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "vs_1", id, "the corpus itself is kept")
}

func TestAsk_Exhaustive(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), textDocs("a.txt", "b.txt"))
	require.NoError(t, err)

	rec := &progress.Recorder{}
	ans, err := f.svc.Ask(context.Background(), AskRequest{Question: "List all people mentioned in the documents"}, rec)
	require.NoError(t, err)

	assert.Equal(t, model.RouteExhaustive, ans.Classification.Route)
	assert.Equal(t, model.CategoryEntities, ans.Classification.Category)
	assert.Contains(t, ans.Text, "John Smith")
	assert.Empty(t, f.searcher.queries, "graph answers never search")

	types := rec.Types()
	assert.Equal(t, progress.TypeStage, types[0])
	assert.Equal(t, progress.StageGraph, rec.Events()[0].Stage)
	assert.Equal(t, progress.TypeStreamStart, types[1])
	assert.Equal(t, progress.TypeStreamEnd, types[len(types)-1])
	assert.Equal(t, ans.Text, rec.Text())

	for _, e := range rec.Events() {
		if e.Type == progress.TypeChunk {
			assert.LessOrEqual(t, len([]rune(e.Content)), 50)
		}
	}
}

func TestAsk_Specific(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.Set(context.Background(), state.KeyVectorStoreID, "vs_9"))
	_, err := f.svc.Ingest(context.Background(), textDocs("a.txt"))
	require.NoError(t, err)

	rec := &progress.Recorder{}
	history := []model.Turn{{Role: "user", Content: "Who is John Smith?"}, {Role: "assistant", Content: "The CFO."}}
	ans, err := f.svc.Ask(context.Background(), AskRequest{
		Question: "Why did John Smith leave the office at midnight?",
		History:  history,
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, model.RouteSpecific, ans.Classification.Route)
	assert.Equal(t, "John Smith gave two different accounts of that night.", ans.Text)
	assert.Equal(t, ans.Text, rec.Text())
	assert.Len(t, ans.Workers, 2)
	assert.Len(t, f.searcher.queries, 2)
	assert.Contains(t, f.searcher.queries[0], "The CFO.")

	var types []progress.EventType
	var stages []string
	var workers []int
	for _, e := range rec.Events() {
		if e.Type == progress.TypeChunk {
			continue
		}
		types = append(types, e.Type)
		switch e.Type {
		case progress.TypeStage:
			stages = append(stages, e.Stage)
		case progress.TypeWorkerProgress:
			workers = append(workers, e.Worker)
		}
	}
	assert.Equal(t, []progress.EventType{
		progress.TypeStage,
		progress.TypeWorkerProgress, progress.TypeWorkerProgress, progress.TypeWorkerProgress,
		progress.TypeStage,
		progress.TypeStreamStart, progress.TypeStreamEnd,
	}, types)
	assert.Equal(t, []string{progress.StageWorkers, progress.StageSynthesizing}, stages)
	assert.Equal(t, []int{0, 1, 2}, workers)
}

func TestAsk_SpecificNoStream(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.Set(context.Background(), state.KeyVectorStoreID, "vs_9"))

	rec := &progress.Recorder{}
	ans, err := f.svc.Ask(context.Background(), AskRequest{
		Question: "Why did John Smith leave the office at midnight?",
		NoStream: true,
	}, rec)
	require.NoError(t, err)

	var chunks int
	for _, e := range rec.Events() {
		if e.Type == progress.TypeChunk {
			chunks++
		}
	}
	assert.Equal(t, 1, chunks)
	assert.Equal(t, ans.Text, rec.Text())
}

func TestAsk_SpecificWithoutCorpus(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), textDocs("a.txt"))
	require.NoError(t, err)

	_, err = f.svc.Ask(context.Background(), AskRequest{Question: "Why did John Smith leave the office at midnight?"}, nil)
	assert.ErrorIs(t, err, ErrNoCorpus)
}

type failingSink struct {
	failOn progress.EventType
}

func (s failingSink) Send(e progress.Event) error {
	if e.Type == s.failOn {
		return errors.New("client gone")
	}
	return nil
}

func TestAsk_SinkFailureStops(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.Set(context.Background(), state.KeyVectorStoreID, "vs_9"))

	_, err := f.svc.Ask(context.Background(), AskRequest{
		Question: "Why did John Smith leave the office at midnight?",
	}, failingSink{failOn: progress.TypeChunk})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client gone")
}

func TestRemoveDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, textDocs("a.txt", "b.txt"))
	require.NoError(t, err)

	summary, err := f.svc.RemoveDocument(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, model.Summary{Documents: 1, Entities: 1, Claims: 1, Events: 1}, summary)

	_, err = f.svc.RemoveDocument(ctx, "missing.txt")
	assert.ErrorIs(t, err, graph.ErrDocumentNotFound)
}

func TestReextract(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Ingest(ctx, textDocs("a.txt", "b.txt"))
	require.NoError(t, err)

	ext := f.extractor.results["b.txt"]
	ext.Claims = append(ext.Claims, model.Claim{Subject: "Acme Corp", Claim: "owns the van", Source: "b.txt"})
	f.extractor.results["b.txt"] = ext

	res, err := f.svc.Reextract(ctx, textDocs("b.txt"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents[0].Claims)
	assert.Equal(t, 3, res.Summary.Claims)
	assert.Equal(t, 2, res.Summary.Documents)
}

func TestDeduplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.extractor.results["c.txt"] = model.Extraction{
		Document: "c.txt",
		Entities: []model.Entity{{Name: "Smith", Type: model.EntityPerson, Source: model.Sources{"c.txt"}}},
	}
	_, err := f.svc.Ingest(ctx, textDocs("a.txt", "c.txt"))
	require.NoError(t, err)

	res, err := f.svc.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, DedupeResult{Before: 2, After: 1, Removed: 1}, res)
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "report.md")

	_, err := f.svc.Report(ctx, "", path, nil)
	assert.ErrorIs(t, err, ErrNoCorpus)

	require.NoError(t, f.state.Set(ctx, state.KeyVectorStoreID, "vs_9"))
	rec := &progress.Recorder{}
	report, err := f.svc.Report(ctx, "", path, rec)
	require.NoError(t, err)
	assert.Equal(t, DefaultReportQuestion, report.Question)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "John Smith gave two different accounts of that night.\n"))
	assert.Contains(t, string(data), "*Generated by:* openai/gpt-4o-mini")
	assert.Contains(t, rec.Types(), progress.TypeWorkerProgress)
}

func TestCorpusLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateCorpus(ctx, "case-42")
	require.NoError(t, err)
	assert.Equal(t, "vs_1", id)

	_, err = f.svc.CreateCorpus(ctx, "again")
	assert.ErrorIs(t, err, ErrCorpusExists)

	deleted, err := f.svc.DeleteCorpus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "vs_1", deleted)

	_, err = f.svc.DeleteCorpus(ctx)
	assert.ErrorIs(t, err, ErrNoCorpus)
	assert.Equal(t, "not_initialized", f.svc.Status(ctx).Status)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ppiankov/casefile/internal/conflict"
	"github.com/ppiankov/casefile/internal/corpus"
	"github.com/ppiankov/casefile/internal/graph"
	"github.com/ppiankov/casefile/internal/investigate"
	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/model"
	"github.com/ppiankov/casefile/internal/progress"
	"github.com/ppiankov/casefile/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, docName, text string) (model.Extraction, error) {
	switch docName {
	case "a.txt":
		return model.Extraction{
			Document: "a.txt",
			Entities: []model.Entity{{Name: "John Smith", Type: model.EntityPerson, Source: model.Sources{"a.txt"}}},
			Claims:   []model.Claim{{Subject: "John Smith", Claim: "was at the office at midnight", Source: "a.txt"}},
		}, nil
	case "b.txt":
		return model.Extraction{
			Document: "b.txt",
			Entities: []model.Entity{{Name: "Acme Corp", Type: model.EntityOrganization, Source: model.Sources{"b.txt"}}},
			Claims:   []model.Claim{{Subject: "John Smith", Claim: "was at home all night", Source: "b.txt"}},
		}, nil
	}
	return model.Extraction{Document: docName}, nil
}

type testServer struct {
	*httptest.Server
	docsDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	svc := investigate.New(investigate.Deps{
		Store:     graph.NewStore(graph.NewMemoryRepository(), conflict.NewDetector(nil, conflict.Config{}, nil), nil, nil),
		Extractor: fakeExtractor{},
		State:     state.NewFileStore(filepath.Join(dir, ".state.json")),
	}, investigate.Config{StreamChunk: 20}, nil)

	docsDir := filepath.Join(dir, "docs")
	srv := New(svc, Config{DocsDir: docsDir, PingInterval: 50 * time.Millisecond}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, docsDir: docsDir}
}

func (ts *testServer) upload(t *testing.T, files map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/documents", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[investigate.Status](t, resp)
	assert.Equal(t, "not_initialized", st.Status)
	assert.Nil(t, st.Corpus)

	resp = ts.do(t, http.MethodGet, "/metrics", "")
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "casefile_conflicts_detected")
}

func TestUploadAndExtraction(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.upload(t, map[string]string{
		"a.txt": "Smith said he was at the office at midnight.",
		"b.txt": "Smith said he was at home all night.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[investigate.IngestResult](t, resp)
	assert.Len(t, result.Documents, 2)
	assert.Equal(t, 2, result.Summary.Documents)
	assert.FileExists(t, filepath.Join(ts.docsDir, "a.txt"))

	st := decode[extractionStatus](t, ts.do(t, http.MethodGet, "/api/extraction/status", ""))
	assert.Equal(t, "ready", st.Status)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, st.Documents)

	conflicts := decode[struct {
		Conflicts []model.Conflict `json:"conflicts"`
		Total     int              `json:"total"`
	}](t, ts.do(t, http.MethodGet, "/api/extraction/conflicts", ""))
	assert.Equal(t, 1, conflicts.Total)

	type entities struct {
		Entities []model.Entity `json:"entities"`
		Total    int            `json:"total"`
	}
	all := decode[entities](t, ts.do(t, http.MethodGet, "/api/extraction/entities", ""))
	assert.Equal(t, 2, all.Total)
	people := decode[entities](t, ts.do(t, http.MethodGet, "/api/extraction/entities?type=person", ""))
	require.Equal(t, 1, people.Total)
	assert.Equal(t, "John Smith", people.Entities[0].Name)

	docs := decode[investigate.Documents](t, ts.do(t, http.MethodGet, "/api/documents", ""))
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, docs.Graph)
	assert.Empty(t, docs.Corpus)
}

func TestUpload_Invalid(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/documents", "not multipart")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = ts.upload(t, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRemoveDocument(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodDelete, "/api/documents/a.txt", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	_ = ts.upload(t, map[string]string{"a.txt": "x", "b.txt": "y"}).Body.Close()

	resp = ts.do(t, http.MethodDelete, "/api/documents/a.txt", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Status  string        `json:"status"`
		Summary model.Summary `json:"summary"`
	}](t, resp)
	assert.Equal(t, "removed", body.Status)
	assert.Equal(t, 1, body.Summary.Documents)
	assert.Equal(t, 0, body.Summary.Conflicts)
}

func TestAsk(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/ask", `{"question": "  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/ask", `{"question": `)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/ask", `{"question": "List all people mentioned in the documents"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	_ = ts.upload(t, map[string]string{"a.txt": "x", "b.txt": "y"}).Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/ask", `{"question": "List all people mentioned in the documents"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ans := decode[askResponse](t, resp)
	assert.Equal(t, model.RouteExhaustive, ans.Route)
	assert.Equal(t, model.CategoryEntities, ans.Category)
	assert.Contains(t, ans.Response, "John Smith")
	assert.NotEmpty(t, ans.ID)
}

func TestCreateCorpus_Unsupported(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/corpus", `{"name": "case"}`)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Contains(t, body.Error, "no document corpus")
}

func TestDeduplicateAndReextract(t *testing.T) {
	ts := newTestServer(t)
	_ = ts.upload(t, map[string]string{"a.txt": "x", "b.txt": "y"}).Body.Close()

	resp := ts.do(t, http.MethodPost, "/api/extraction/deduplicate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dedupe := decode[investigate.DedupeResult](t, resp)
	assert.Equal(t, 2, dedupe.Before)
	assert.Equal(t, 2, dedupe.After)

	resp = ts.do(t, http.MethodPost, "/api/extraction/reextract", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[investigate.IngestResult](t, resp)
	assert.Len(t, result.Documents, 2)
	assert.Equal(t, 1, result.Summary.Conflicts)

	resp = ts.do(t, http.MethodPost, "/api/extraction/reextract", `{"documents": ["missing.txt"]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestWebSocket_QuestionLoop(t *testing.T) {
	ts := newTestServer(t)
	_ = ts.upload(t, map[string]string{"a.txt": "x", "b.txt": "y"}).Body.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	readUntil := func(stop progress.EventType) []progress.Event {
		var events []progress.Event
		for {
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
			var e progress.Event
			require.NoError(t, conn.ReadJSON(&e))
			events = append(events, e)
			if e.Type == stop {
				return events
			}
		}
	}

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "hello"}))
	events := readUntil(progress.TypeError)
	assert.Equal(t, "Expected a question message", events[0].Content)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "question", Content: "List all people mentioned in the documents"}))
	events = readUntil(progress.TypeStreamEnd)

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, progress.TypeStage, events[0].Type)
	assert.Equal(t, progress.StageGraph, events[0].Stage)
	assert.Equal(t, progress.TypeStreamStart, events[1].Type)

	var text strings.Builder
	for _, e := range events[2 : len(events)-1] {
		require.Equal(t, progress.TypeChunk, e.Type)
		assert.LessOrEqual(t, len([]rune(e.Content)), 20)
		text.WriteString(e.Content)
	}
	assert.Contains(t, text.String(), "John Smith")
	assert.Equal(t, "List all people mentioned in the documents", events[len(events)-1].Question)

	// the loop keeps serving after an answer
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "question", Content: "Find all inconsistencies"}))
	events = readUntil(progress.TypeStreamEnd)
	assert.Equal(t, progress.TypeStreamEnd, events[len(events)-1].Type)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{badRequest("x"), http.StatusBadRequest},
		{investigate.ErrNoCorpus, http.StatusConflict},
		{fmt.Errorf("ingest: %w", investigate.ErrNoDocuments), http.StatusConflict},
		{investigate.ErrCorpusExists, http.StatusConflict},
		{investigate.ErrCorpusUnsupported, http.StatusNotImplemented},
		{fmt.Errorf("extract: %w", llm.ErrNotConfigured), http.StatusServiceUnavailable},
		{graph.ErrDocumentNotFound, http.StatusNotFound},
		{fmt.Errorf("read: %w", os.ErrNotExist), http.StatusNotFound},
		{corpus.ErrIndexTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

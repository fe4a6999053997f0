package progress

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(WorkerProgress(2, 4, "Worker 2 analyzing documents..."))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"worker_progress","status":"Worker 2 analyzing documents...","worker":2,"total":4,"progress":0.5}`, string(data))

	data, err = json.Marshal(StreamStart())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stream_start"}`, string(data))
}

func TestStream_Protocol(t *testing.T) {
	rec := &Recorder{}
	s := NewStream(rec)

	require.NoError(t, s.Stage(StageWorkers, "Searching..."))
	require.NoError(t, s.Worker(0, 2, "planning"))
	require.NoError(t, s.Worker(1, 2, "one"))
	require.NoError(t, s.Worker(2, 2, "two"))

	assert.ErrorIs(t, s.Chunk("early"), ErrProtocol)
	assert.ErrorIs(t, s.End("q"), ErrProtocol)

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrProtocol)
	require.NoError(t, s.Chunk("The van "))
	require.NoError(t, s.Chunk("was blue."))
	require.NoError(t, s.End("Which van?"))
	assert.ErrorIs(t, s.Chunk("late"), ErrProtocol)
	assert.ErrorIs(t, s.End("q"), ErrProtocol)

	assert.Equal(t, []EventType{
		TypeStage, TypeWorkerProgress, TypeWorkerProgress, TypeWorkerProgress,
		TypeStreamStart, TypeChunk, TypeChunk, TypeStreamEnd,
	}, rec.Types())
	assert.Equal(t, "The van was blue.", rec.Text())

	for _, e := range rec.Events() {
		assert.Equal(t, s.RunID(), e.RunID)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestStream_WorkerOutOfOrder(t *testing.T) {
	s := NewStream(nil)
	require.NoError(t, s.Worker(2, 3, "two"))
	require.NoError(t, s.Worker(2, 3, "two again"))
	assert.ErrorIs(t, s.Worker(1, 3, "one"), ErrOutOfOrder)
}

func TestWriterSink(t *testing.T) {
	var status, out bytes.Buffer
	sink := NewWriterSink(&status, &out)

	s := NewStream(sink)
	require.NoError(t, s.Stage(StageWorkers, "Searching documents"))
	require.NoError(t, s.Worker(0, 2, "Planning"))
	require.NoError(t, s.Worker(1, 2, "Worker 1 analyzing documents..."))
	require.NoError(t, s.Start())
	require.NoError(t, s.Chunk("Answer"))
	require.NoError(t, s.End("q"))
	require.NoError(t, s.Error("boom"))

	assert.Equal(t, "→ Searching documents\n  Planning\n  [1/2] Worker 1 analyzing documents...\nError: boom\n", status.String())
	assert.Equal(t, "Answer\n", out.String())
}

func TestWebSocketSink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var wg sync.WaitGroup

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		sink := NewWebSocketSink(conn, time.Second)
		s := NewStream(sink)

		// concurrent writers must not interleave frames
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = sink.Ping()
		}()
		go func() {
			defer wg.Done()
			_ = s.Start()
			_ = s.Chunk("hello")
			_ = s.End("q")
		}()
		wg.Wait()

		// wait for the client to hang up
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var types []EventType
	for len(types) < 3 {
		var e Event
		require.NoError(t, conn.ReadJSON(&e))
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{TypeStreamStart, TypeChunk, TypeStreamEnd}, types)
	_ = conn.Close()
}

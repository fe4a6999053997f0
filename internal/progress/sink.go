package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Sink receives progress events
type Sink interface {
	Send(e Event) error
}

// Discard drops every event
var Discard Sink = discard{}

type discard struct{}

func (discard) Send(Event) error { return nil }

// WriterSink prints status lines to one writer and answer text to
// another, for terminal use
type WriterSink struct {
	mu     sync.Mutex
	status io.Writer
	out    io.Writer
}

// NewWriterSink creates a sink writing status to status and answer
// fragments to out
func NewWriterSink(status, out io.Writer) *WriterSink {
	return &WriterSink{status: status, out: out}
}

func (s *WriterSink) Send(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch e.Type {
	case TypeStage:
		_, err = fmt.Fprintf(s.status, "→ %s\n", e.Content)
	case TypeWorkerProgress:
		if e.Worker == 0 {
			_, err = fmt.Fprintf(s.status, "  %s\n", e.Status)
		} else {
			_, err = fmt.Fprintf(s.status, "  [%d/%d] %s\n", e.Worker, e.Total, e.Status)
		}
	case TypeChunk:
		_, err = io.WriteString(s.out, e.Content)
	case TypeStreamEnd:
		_, err = io.WriteString(s.out, "\n")
	case TypeError:
		_, err = fmt.Fprintf(s.status, "Error: %s\n", e.Content)
	}
	return err
}

// WebSocketSink writes events as JSON text frames. Writes are serialized
// so a ping loop and the answer stream can share the connection.
type WebSocketSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketSink wraps conn. A zero timeout means 10 seconds.
func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocketSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *WebSocketSink) Send(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(e); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Ping sends a ping control frame
func (s *WebSocketSink) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.writeTimeout))
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Send(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of what was recorded
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// Text concatenates the recorded chunks
func (r *Recorder) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, e := range r.events {
		if e.Type == TypeChunk {
			b.WriteString(e.Content)
		}
	}
	return b.String()
}

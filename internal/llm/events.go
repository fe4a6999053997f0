package llm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// StreamEvent is one event of an incremental completion. It is one of
// DeltaEvent, DoneEvent, FailedEvent or UnknownEvent.
type StreamEvent interface {
	streamEvent()
}

// DeltaEvent carries the next fragment of generated text
type DeltaEvent struct {
	Text string
}

// DoneEvent marks the end of generation
type DoneEvent struct{}

// FailedEvent reports that the service aborted generation
type FailedEvent struct {
	Message string
}

// UnknownEvent is an event shape that carries no text. Consumers skip it.
type UnknownEvent struct {
	Type string
}

func (DeltaEvent) streamEvent()   {}
func (DoneEvent) streamEvent()    {}
func (FailedEvent) streamEvent()  {}
func (UnknownEvent) streamEvent() {}

// EventStream yields events until io.EOF. Close releases the connection.
type EventStream interface {
	Recv() (StreamEvent, error)
	Close() error
}

// DecodeEvent classifies one raw event payload. Text can arrive as a
// string delta on a typed event, as a nested {"text": ...} delta, or as a
// bare text or delta field on an untyped event. Anything else decodes to
// UnknownEvent rather than an error.
func DecodeEvent(data []byte) StreamEvent {
	trimmed := bytes.TrimSpace(data)
	if string(trimmed) == "[DONE]" {
		return DoneEvent{}
	}

	var probe struct {
		Type    string          `json:"type"`
		Delta   json.RawMessage `json:"delta"`
		Text    *string         `json:"text"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return UnknownEvent{}
	}

	switch probe.Type {
	case "response.output_text.delta":
		if text, ok := deltaString(probe.Delta); ok {
			return DeltaEvent{Text: text}
		}
	case "response.content_part.delta", "content_block_delta":
		if text, ok := deltaText(probe.Delta); ok {
			return DeltaEvent{Text: text}
		}
	case "response.completed", "response.done", "message_stop":
		return DoneEvent{}
	case "error", "response.failed":
		return FailedEvent{Message: failureMessage(probe.Message, probe.Error)}
	case "":
		if probe.Text != nil {
			return DeltaEvent{Text: *probe.Text}
		}
		if text, ok := deltaString(probe.Delta); ok {
			return DeltaEvent{Text: text}
		}
		if text, ok := deltaText(probe.Delta); ok {
			return DeltaEvent{Text: text}
		}
	}

	return UnknownEvent{Type: probe.Type}
}

func deltaString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func deltaText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var nested struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil || nested.Text == nil {
		return "", false
	}
	return *nested.Text, true
}

func failureMessage(message string, raw json.RawMessage) string {
	if message != "" {
		return message
	}
	var nested struct {
		Message string `json:"message"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	return "generation failed"
}

// sseStream reads server-sent events and decodes each data payload
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{body: body, scanner: scanner}
}

// Recv returns the next decoded event. A FailedEvent is turned into an
// error; after DoneEvent the stream reports io.EOF.
func (s *sseStream) Recv() (StreamEvent, error) {
	if s.done {
		return nil, io.EOF
	}

	var data []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if len(data) == 0 {
				continue
			}
			return s.emit(strings.Join(data, "\n"))
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(payload, " "))
		}
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	if len(data) > 0 {
		return s.emit(strings.Join(data, "\n"))
	}

	s.done = true
	return nil, io.EOF
}

func (s *sseStream) emit(payload string) (StreamEvent, error) {
	ev := DecodeEvent([]byte(payload))
	switch e := ev.(type) {
	case DoneEvent:
		s.done = true
	case FailedEvent:
		s.done = true
		return nil, errors.New(e.Message)
	}
	return ev, nil
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

package llm

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		data string
		want StreamEvent
	}{
		{"done sentinel", "[DONE]", DoneEvent{}},
		{"output text delta", `{"type":"response.output_text.delta","delta":"abc"}`, DeltaEvent{Text: "abc"}},
		{"content part delta", `{"type":"response.content_part.delta","delta":{"text":"x"}}`, DeltaEvent{Text: "x"}},
		{"content block delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"y"}}`, DeltaEvent{Text: "y"}},
		{"completed", `{"type":"response.completed"}`, DoneEvent{}},
		{"message stop", `{"type":"message_stop"}`, DoneEvent{}},
		{"failed with nested message", `{"type":"response.failed","error":{"message":"quota"}}`, FailedEvent{Message: "quota"}},
		{"error without message", `{"type":"error"}`, FailedEvent{Message: "generation failed"}},
		{"untyped text", `{"text":"hello"}`, DeltaEvent{Text: "hello"}},
		{"untyped string delta", `{"delta":"hi"}`, DeltaEvent{Text: "hi"}},
		{"untyped nested delta", `{"delta":{"text":"yo"}}`, DeltaEvent{Text: "yo"}},
		{"empty text is still a delta", `{"text":""}`, DeltaEvent{Text: ""}},
		{"typed event without text", `{"type":"response.created"}`, UnknownEvent{Type: "response.created"}},
		{"delta of the wrong shape", `{"type":"response.output_text.delta","delta":{"text":"x"}}`, UnknownEvent{Type: "response.output_text.delta"}},
		{"not json", `garbage`, UnknownEvent{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeEvent([]byte(tt.data)))
		})
	}
}

func TestSSEStream_MultilineAndComments(t *testing.T) {
	body := ": keepalive\n\n" +
		"event: delta\n" +
		"data: {\"type\":\"response.output_text.delta\",\n" +
		"data: \"delta\":\"joined\"}\n\n" +
		"data: {\"type\":\"response.created\"}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"text\":\"after done\"}\n\n"

	stream := newSSEStream(io.NopCloser(strings.NewReader(body)))

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, DeltaEvent{Text: "joined"}, ev)

	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, UnknownEvent{Type: "response.created"}, ev)

	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, DoneEvent{}, ev)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEStream_TrailingEventWithoutBlankLine(t *testing.T) {
	stream := newSSEStream(io.NopCloser(strings.NewReader(`data: {"text":"tail"}`)))

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, DeltaEvent{Text: "tail"}, ev)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEStream_FailedEventIsError(t *testing.T) {
	stream := newSSEStream(io.NopCloser(strings.NewReader("data: {\"type\":\"response.failed\",\"message\":\"boom\"}\n\n")))

	_, err := stream.Recv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

package coa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/metrics"
)

// FallbackChunkSize is the fragment size, in characters, when a blocking
// answer is replayed as a stream
const FallbackChunkSize = 10

// Synthesizer turns a reduction input into the final answer
type Synthesizer struct {
	completer llm.Completer
	streamer  llm.Streamer
	model     string
	logger    *zap.Logger
}

// NewSynthesizer creates a synthesizer. streamer may be nil, in which
// case every stream is a replayed blocking call.
func NewSynthesizer(completer llm.Completer, streamer llm.Streamer, model string, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		completer: completer,
		streamer:  streamer,
		model:     model,
		logger:    logger.Named("synth"),
	}
}

// Complete returns the whole answer in one blocking call
func (s *Synthesizer) Complete(ctx context.Context, input string) (string, error) {
	resp, err := s.completer.Complete(ctx, llm.Request{Prompt: input, Model: s.model})
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	return resp.Text, nil
}

// Stream yields the answer as text fragments. It prefers incremental
// output; when the stream cannot be opened or breaks, the rest of the
// answer comes from one blocking call cut into FallbackChunkSize pieces.
// If that fails too a single fragment describes the error. The sequence
// never panics or blocks forever on its own, and it can be ranged over
// only once; later ranges yield nothing.
func (s *Synthesizer) Stream(ctx context.Context, input string) iter.Seq[string] {
	var used atomic.Bool

	return func(yield func(string) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}

		var emitted strings.Builder
		if s.streamer != nil {
			stopped, err := s.streamInto(ctx, input, &emitted, yield)
			if stopped {
				return
			}
			if err == nil {
				metrics.SynthesisPaths.WithLabelValues("stream").Inc()
				return
			}
			s.logger.Warn("streaming unavailable, falling back to full response", zap.Error(err))
		}

		text, err := s.Complete(ctx, input)
		if err != nil {
			s.logger.Error("fallback synthesis failed", zap.Error(err))
			metrics.SynthesisPaths.WithLabelValues("error").Inc()
			yield("Error generating response: " + err.Error())
			return
		}
		metrics.SynthesisPaths.WithLabelValues("fallback").Inc()

		text = remainder(emitted.String(), text)
		for _, chunk := range Chunk(text, FallbackChunkSize) {
			if !yield(chunk) {
				return
			}
		}
	}
}

// streamInto forwards deltas to yield. stopped is true when the consumer
// quit early. A stream that ends without any text counts as a failure.
func (s *Synthesizer) streamInto(ctx context.Context, input string, emitted *strings.Builder, yield func(string) bool) (stopped bool, err error) {
	stream, err := s.streamer.Stream(ctx, llm.Request{Prompt: input, Model: s.model})
	if err != nil {
		return false, err
	}
	defer func() { _ = stream.Close() }()

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, err
		}

		switch e := ev.(type) {
		case llm.DeltaEvent:
			if e.Text == "" {
				continue
			}
			emitted.WriteString(e.Text)
			if !yield(e.Text) {
				return true, nil
			}
		case llm.FailedEvent:
			return false, errors.New(e.Message)
		case llm.DoneEvent:
			if emitted.Len() == 0 {
				return false, llm.ErrEmptyResponse
			}
			return false, nil
		}
	}

	if emitted.Len() == 0 {
		return false, llm.ErrEmptyResponse
	}
	return false, nil
}

// remainder returns what is left of full after the part already sent.
// When full does not continue what was sent, it is sent whole after a
// separator.
func remainder(sent, full string) string {
	if sent == "" {
		return full
	}
	if strings.HasPrefix(full, sent) {
		return full[len(sent):]
	}
	return "\n\n---\n\n" + full
}

// Chunk cuts text into pieces of size characters. The last piece may be
// shorter.
func Chunk(text string, size int) []string {
	if size < 1 {
		size = 1
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

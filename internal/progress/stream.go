package progress

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrOutOfOrder is returned when worker progress goes backwards
	ErrOutOfOrder = errors.New("worker progress out of order")

	// ErrProtocol is returned when stream events arrive out of sequence
	ErrProtocol = errors.New("progress stream protocol violation")
)

// Stream is the progress of one question. It stamps every event with
// the run id and time, and holds the sender to the protocol: worker
// indexes never decrease, exactly one stream_start comes before any
// chunk and exactly one stream_end follows the last chunk. It is safe
// for concurrent use.
type Stream struct {
	mu         sync.Mutex
	sink       Sink
	runID      string
	now        func() time.Time
	lastWorker int
	started    bool
	ended      bool
}

// NewStream starts a run on sink with a fresh id
func NewStream(sink Sink) *Stream {
	if sink == nil {
		sink = Discard
	}
	return &Stream{
		sink:       sink,
		runID:      uuid.NewString(),
		now:        time.Now,
		lastWorker: -1,
	}
}

// RunID identifies this run
func (s *Stream) RunID() string {
	return s.runID
}

// Started reports whether stream_start was sent
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Ended reports whether stream_end was sent
func (s *Stream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Stream) Stage(name, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(Stage(name, message))
}

func (s *Stream) Worker(worker, total int, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if worker < s.lastWorker {
		return fmt.Errorf("%w: worker %d after %d", ErrOutOfOrder, worker, s.lastWorker)
	}
	s.lastWorker = worker
	return s.send(WorkerProgress(worker, total, status))
}

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%w: stream already started", ErrProtocol)
	}
	s.started = true
	return s.send(StreamStart())
}

func (s *Stream) Chunk(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.ended {
		return fmt.Errorf("%w: chunk outside stream", ErrProtocol)
	}
	return s.send(Chunk(text))
}

func (s *Stream) End(question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.ended {
		return fmt.Errorf("%w: stream not open", ErrProtocol)
	}
	s.ended = true
	return s.send(StreamEnd(question))
}

func (s *Stream) Error(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(Error(message))
}

func (s *Stream) send(e Event) error {
	e.RunID = s.runID
	e.Timestamp = s.now().UTC()
	return s.sink.Send(e)
}

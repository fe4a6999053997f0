// Package progress carries status and answer fragments from a running
// question to whoever is listening
package progress

import "time"

// EventType names a progress event
type EventType string

const (
	TypeStage          EventType = "stage"
	TypeWorkerProgress EventType = "worker_progress"
	TypeStreamStart    EventType = "stream_start"
	TypeChunk          EventType = "chunk"
	TypeStreamEnd      EventType = "stream_end"
	TypeError          EventType = "error"
)

// Stage names
const (
	StageGraph        = "graph"
	StageWorkers      = "workers"
	StageSynthesizing = "synthesizing"
)

// Event is one message on the progress channel
type Event struct {
	Type      EventType `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	Content   string    `json:"content,omitempty"`
	Status    string    `json:"status,omitempty"` // Worker status line
	Worker    int       `json:"worker,omitempty"`
	Total     int       `json:"total,omitempty"`
	Progress  float64   `json:"progress,omitempty"` // Worker / Total
	Question  string    `json:"question,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	RunID     string    `json:"run_id,omitempty"`
}

// Stage announces a pipeline stage
func Stage(name, message string) Event {
	return Event{Type: TypeStage, Stage: name, Content: message}
}

// WorkerProgress reports that worker of total has finished. worker 0 is
// the planning step before any worker runs.
func WorkerProgress(worker, total int, status string) Event {
	e := Event{Type: TypeWorkerProgress, Worker: worker, Total: total, Status: status}
	if total > 0 {
		e.Progress = float64(worker) / float64(total)
	}
	return e
}

// StreamStart opens the answer stream
func StreamStart() Event {
	return Event{Type: TypeStreamStart}
}

// Chunk carries the next answer fragment
func Chunk(text string) Event {
	return Event{Type: TypeChunk, Content: text}
}

// StreamEnd closes the answer stream for question
func StreamEnd(question string) Event {
	return Event{Type: TypeStreamEnd, Question: question}
}

// Error reports a failure the user should see
func Error(message string) Event {
	return Event{Type: TypeError, Content: message}
}

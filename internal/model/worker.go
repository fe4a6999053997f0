package model

// WorkerOutput is what one search worker produced. It is the worker's
// JSON object when the response parsed, otherwise the raw text. Outputs
// live only for one orchestration run.
type WorkerOutput map[string]any

const (
	WorkerKeySearchQuery = "_search_query" // Focus string the worker searched with
	WorkerKeyRawText     = "raw_text"      // Unparsed response text
	WorkerKeyError       = "_error"        // Search call failure
)

// SearchQuery returns the focus string the worker searched with
func (o WorkerOutput) SearchQuery() string {
	s, _ := o[WorkerKeySearchQuery].(string)
	return s
}

// Degraded reports whether the worker response could not be parsed
func (o WorkerOutput) Degraded() bool {
	_, ok := o[WorkerKeyRawText]
	return ok
}

// Failed reports whether the worker's search call failed
func (o WorkerOutput) Failed() bool {
	_, ok := o[WorkerKeyError]
	return ok
}

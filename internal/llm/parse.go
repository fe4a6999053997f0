package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedOutput is returned when a response expected to be JSON is not
var ErrMalformedOutput = errors.New("malformed structured output")

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ParseJSON unmarshals content into T. If the content is not JSON as a
// whole it retries with the body of the first markdown code fence.
func ParseJSON[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}

	if m := jsonFence.FindStringSubmatch(content); len(m) >= 2 {
		var fenced T
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &fenced); err == nil {
			return fenced, nil
		}
	}

	var zero T
	return zero, fmt.Errorf("%w: %s", ErrMalformedOutput, truncate(content, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

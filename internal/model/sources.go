package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sources lists the documents that contributed an entity. It is stored as
// a plain string while one document contributes and as a list after that.
type Sources []string

// Add returns s with name appended if it is not already present
func (s Sources) Add(name string) Sources {
	if name == "" || s.Contains(name) {
		return s
	}
	return append(s, name)
}

// Remove returns s without name
func (s Sources) Remove(name string) Sources {
	out := s[:0:0]
	for _, src := range s {
		if src != name {
			out = append(out, src)
		}
	}
	return out
}

// Contains reports whether name is one of the sources
func (s Sources) Contains(name string) bool {
	for _, src := range s {
		if src == name {
			return true
		}
	}
	return false
}

// Only reports whether name is the single source
func (s Sources) Only(name string) bool {
	return len(s) == 1 && s[0] == name
}

// Multiple reports whether more than one document contributed
func (s Sources) Multiple() bool {
	return len(s) > 1
}

func (s Sources) String() string {
	return strings.Join(s, ", ")
}

// MarshalJSON encodes a single source as a string and several as a list
func (s Sources) MarshalJSON() ([]byte, error) {
	switch len(s) {
	case 0:
		return []byte(`""`), nil
	case 1:
		return json.Marshal(s[0])
	default:
		return json.Marshal([]string(s))
	}
}

// UnmarshalJSON accepts either a string or a list of strings
func (s *Sources) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = nil
		return nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("decode source: %w", err)
		}
		if single == "" {
			*s = nil
		} else {
			*s = Sources{single}
		}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decode sources: %w", err)
	}
	*s = nil
	for _, src := range list {
		*s = s.Add(src)
	}
	return nil
}

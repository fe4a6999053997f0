package graph

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ppiankov/casefile/internal/model"
)

// Normalize lowercases name and drops everything except letters, digits,
// underscores and whitespace
func Normalize(name string) string {
	lowered := strings.ToLower(name)
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, lowered)
	return strings.TrimSpace(stripped)
}

// Matcher compares entity names fuzzily.
//
// Two names refer to the same thing when they are equal after
// normalization or when the words of one are a subset of the words of
// the other. With SingleWordOverlap off, a subset match whose smaller
// side is a single word ("Amanda" against "Amanda Lynn Plasse") is
// rejected, which trades recall for fewer false hits on common first
// names.
type Matcher struct {
	SingleWordOverlap bool
}

// NewMatcher creates a matcher
func NewMatcher(singleWordOverlap bool) *Matcher {
	return &Matcher{SingleWordOverlap: singleWordOverlap}
}

// Refers reports whether a name taken from a question refers to a known
// entity name
func (m *Matcher) Refers(query, entity string) bool {
	q := Normalize(query)
	e := Normalize(entity)
	if q == "" || e == "" {
		return false
	}
	if q == e {
		return true
	}
	return m.wordSubset(strings.Fields(q), strings.Fields(e))
}

// Same reports whether two extracted entity names describe the same
// entity. One name must appear inside the other and the words of one
// must be a subset of the words of the other.
func (m *Matcher) Same(a, b string) bool {
	n1 := mergeKey(a)
	n2 := mergeKey(b)
	if n1 == "" || n2 == "" {
		return false
	}
	if n1 == n2 {
		return true
	}
	if !strings.Contains(n1, n2) && !strings.Contains(n2, n1) {
		return false
	}
	return m.wordSubset(strings.Fields(n1), strings.Fields(n2))
}

func (m *Matcher) wordSubset(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if subset(a, b) {
		return m.SingleWordOverlap || len(uniqueWords(a)) > 1
	}
	if subset(b, a) {
		return m.SingleWordOverlap || len(uniqueWords(b)) > 1
	}
	return false
}

func subset(small, large []string) bool {
	set := uniqueWords(large)
	for _, w := range small {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func uniqueWords(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// mergeKey is the key entities are merged on: lowercased with whitespace
// collapsed
func mergeKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Index is a token to entity inverted index. Lookups shortlist the
// entities sharing at least one word with the query before the pairwise
// match rule runs.
type Index struct {
	matcher  *Matcher
	entities []model.Entity
	tokens   map[string][]int
}

// NewIndex indexes entities by their normalized name words
func NewIndex(m *Matcher, entities []model.Entity) *Index {
	idx := &Index{
		matcher:  m,
		entities: entities,
		tokens:   make(map[string][]int),
	}
	for i, e := range entities {
		for w := range uniqueWords(strings.Fields(Normalize(e.Name))) {
			idx.tokens[w] = append(idx.tokens[w], i)
		}
	}
	return idx
}

// Find returns the entities any of names refers to, in graph order and
// without duplicates
func (idx *Index) Find(names []string) []model.Entity {
	hit := make(map[int]bool)
	for _, name := range names {
		for _, i := range idx.candidates(name) {
			if hit[i] {
				continue
			}
			if idx.matcher.Refers(name, idx.entities[i].Name) {
				hit[i] = true
			}
		}
	}

	positions := make([]int, 0, len(hit))
	for i := range hit {
		positions = append(positions, i)
	}
	sort.Ints(positions)

	matches := make([]model.Entity, len(positions))
	for n, i := range positions {
		matches[n] = idx.entities[i]
	}
	return matches
}

func (idx *Index) candidates(name string) []int {
	seen := make(map[int]bool)
	var out []int
	for _, w := range strings.Fields(Normalize(name)) {
		for _, i := range idx.tokens[w] {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	return out
}

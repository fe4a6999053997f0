package router

import "strings"

// Capitalized only because they open the question
var leadingWords = map[string]bool{
	"Who": true, "What": true, "When": true, "Where": true, "Why": true, "How": true,
	"Which": true, "Is": true, "Are": true, "Was": true, "Were": true, "Did": true,
	"Do": true, "Does": true, "Can": true, "Tell": true, "Describe": true, "List": true,
	"Show": true, "Give": true, "Find": true, "Information": true, "Details": true,
	"Background": true, "Profile": true, "The": true,
}

// ExtractNames pulls candidate entity names out of a question: quoted
// strings first, then runs of capitalized words with any opening question
// words ("Who", "Did") cut off. Duplicates are dropped and the first
// occurrence keeps its position.
func ExtractNames(question string) []string {
	var names []string
	seen := make(map[string]bool)

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	for _, m := range doubleQuoted.FindAllStringSubmatch(question, -1) {
		add(m[1])
	}
	for _, m := range singleQuoted.FindAllStringSubmatch(question, -1) {
		add(m[1])
	}
	for _, m := range capitalizedRun.FindAllStringSubmatch(question, -1) {
		add(trimLeading(m[1]))
	}

	return names
}

func trimLeading(run string) string {
	words := strings.Fields(run)
	for len(words) > 0 && leadingWords[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

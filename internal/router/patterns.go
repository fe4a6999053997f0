package router

import (
	"regexp"
	"strings"
)

// Phrases asking for an aggregate the graph already holds. Matched as
// substrings of the lowercased question, so trailing spaces matter.
var comprehensiveKeywords = []string{
	"all ", "every ", "list ", "find all", "show all", "give me all",
	"inconsistencies", "contradictions", "conflicts", "discrepancies",
	"everyone", "everything", "everybody",
	"summarize all", "summary of all", "summarize the",
	"how many", "count ",
	"complete list", "full list",
	"all people", "all entities", "all events",
	"timeline", "chronology", "sequence of events",
	"overview", "what do we know",
	"what entities", "what people", "what events",
	"list the ", "list all",
}

// Questions about one named thing
var entityLookupPatterns = compile(
	`^who is\b`,
	`^who was\b`,
	`^who are\b`,
	`^what is (?:the )?\w+(?:'s| of)\b`,
	`^tell me about\b`,
	`^what do (?:we|you) know about\b`,
	`^information (?:on|about)\b`,
	`^details (?:on|about)\b`,
	`^background on\b`,
	`^profile of\b`,
	`^describe\b`,
	`\bwho\b.*\bmentioned\b`,
	`\bwhat\b.*\brole\b`,
)

// Questions that need verbatim document context
var deepAnalysisPatterns = compile(
	`why did\b`,
	`why was\b`,
	`how did\b`,
	`what happened\b.*\bwhen\b`,
	`what.*\bsay about\b`,
	`what.*\btestif`,
	`what.*\bstate\b`,
	`what.*\bclaim\b`,
	`explain.*\brelationship\b`,
	`connection between\b`,
	`evidence\b.*\b(?:that|of|for)\b`,
	`prove\b`,
	`according to\b`,
	`what does.*\b(?:document|report|interview)\b.*\bsay\b`,
	`quote\b`,
	`exact\b.*\bword`,
	`specific.*\bdetail`,
	`context\b.*\bof\b`,
	`circumstances\b`,
	`motive\b`,
	`reason\b.*\bfor\b`,
)

// Category keywords, checked in this order
var (
	conflictKeywords = []string{"inconsisten", "contradict", "conflict", "discrepan"}

	entityKeywords = []string{
		"people", "person", "everyone", "who", "entities", "organizations",
		"names", "name", "individuals", "suspects", "witnesses", "victims",
	}

	entityPhrases = []string{
		"tell me about", "information on", "details on", "background on",
		"profile of", "what do we know about", "describe",
	}

	eventKeywords   = []string{"timeline", "events", "when", "chronolog", "sequence", "dates"}
	summaryKeywords = []string{"summarize", "summary", "overview", "everything"}
)

var (
	// Proper noun runs such as "Detective Roman" or "Amanda Lynn Plasse"
	capitalizedRun = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`)

	doubleQuoted = regexp.MustCompile(`"([^"]+)"`)

	// Single quotes only count at word edges so possessives stay intact
	singleQuoted = regexp.MustCompile(`(?:^|[\s(])'([^']+)'(?:$|[\s).,;:!?])`)
)

func compile(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

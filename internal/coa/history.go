package coa

import (
	"strings"

	"github.com/ppiankov/casefile/internal/model"
)

// DefaultHistoryTurnLimit caps the characters kept from each prior turn
const DefaultHistoryTurnLimit = 500

// FormatHistory renders prior turns as a prompt section. Each turn is cut
// to limit characters. An empty history renders as nothing.
func FormatHistory(turns []model.Turn, limit int) string {
	if len(turns) == 0 {
		return ""
	}
	if limit <= 0 {
		limit = DefaultHistoryTurnLimit
	}

	var b strings.Builder
	b.WriteString("CONVERSATION HISTORY:\n")
	for _, t := range turns {
		role := "Assistant"
		if strings.EqualFold(t.Role, "user") {
			role = "User"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(clip(t.Content, limit))
		b.WriteString("\n\n")
	}
	b.WriteString("---\n\n")
	return b.String()
}

// clip cuts s to n runes and marks the cut
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

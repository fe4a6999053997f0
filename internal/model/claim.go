package model

// Claim is an assertion made in a document about a subject. Claims are
// additive: the same statement may appear more than once.
type Claim struct {
	Subject string `json:"subject"`           // Who or what the claim is about
	Claim   string `json:"claim"`             // What is being asserted
	Quote   string `json:"quote,omitempty"`   // Exact quote from the document
	Context string `json:"context,omitempty"` // Surrounding context
	Source  string `json:"source"`            // Document the claim came from
}

// ConflictType classifies a detected conflict
type ConflictType string

const (
	ConflictPotentialInconsistency ConflictType = "potential_inconsistency" // Heuristic: same subject, different claims
	ConflictContradiction          ConflictType = "contradiction"           // Claims cannot both be true
	ConflictInconsistency          ConflictType = "inconsistency"           // Claims disagree in detail
	ConflictDiscrepancy            ConflictType = "discrepancy"             // Numbers, dates or names differ
)

// Valid reports whether t is one of the known conflict types
func (t ConflictType) Valid() bool {
	switch t {
	case ConflictPotentialInconsistency, ConflictContradiction, ConflictInconsistency, ConflictDiscrepancy:
		return true
	}
	return false
}

// Conflict groups claims that disagree with each other. Conflicts are
// derived data: they are recomputed from claims and never edited by hand.
type Conflict struct {
	Subject     string       `json:"subject"`
	Type        ConflictType `json:"type"`
	Claims      []Claim      `json:"claims"`
	Sources     []string     `json:"sources"`
	Description string       `json:"description,omitempty"`
}

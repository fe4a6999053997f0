package coa

import _ "embed"

//go:embed prompts/worker.md
var workerPrompt string

//go:embed prompts/manager.md
var managerPrompt string

// Prompts are the instruction templates for search workers and the
// reducing manager
type Prompts struct {
	Worker  string
	Manager string
}

// DefaultPrompts returns the built-in templates
func DefaultPrompts() Prompts {
	return Prompts{Worker: workerPrompt, Manager: managerPrompt}
}

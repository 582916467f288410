// Package collab defines the contract with the external text-generation
// service that authors analysis code, and its provider adapters. The core is
// agnostic to transport: a collaborator is a text-in/text-out dependency with
// memory of prior turns until reset.
package collab

import "context"

// Role identifies the author of a transcript message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Collaborator is the external reasoning service driving code authorship.
type Collaborator interface {
	// Ask sends one prompt and returns the reply, remembering both as part
	// of the ongoing conversation.
	Ask(ctx context.Context, prompt string) (string, error)

	// DeleteHistory discards the conversation so the next Ask starts fresh.
	DeleteHistory()

	// History returns the ordered transcript exchanged so far.
	History() []Message
}

// SystemPrompt returns the standing instruction for the execution mode the
// collaborator's code will run under.
func SystemPrompt(persistent bool) string {
	if persistent {
		return "You are a data analysis assistant with access to a persistent Python environment. " +
			"Variables, imports, and files from earlier code snippets remain available in later ones; " +
			"do not reload data you have already loaded."
	}
	return "You are a data analysis assistant. Each Python code snippet you write runs in a fresh " +
		"interpreter with no memory of previous snippets; every snippet must include all imports " +
		"and data loading it needs."
}

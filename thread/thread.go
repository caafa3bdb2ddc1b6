// Package thread defines the conversation message store consumed by the
// orchestrator for agent-to-agent history sharing. Threads correlate messages
// across agent calls; the store itself is an external collaborator and only
// the subset of operations the core needs is modeled here.
package thread

import "context"

// Roles recorded on thread messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type (
	// Message is a single thread entry.
	Message struct {
		// Role identifies the author kind (system, user, assistant).
		Role string
		// Content is the message body.
		Content string
	}

	// Store persists thread messages.
	//
	// Implementations must preserve per-thread insertion order: Messages
	// returns entries in the order they were saved.
	Store interface {
		// Messages returns all messages for the thread, oldest first.
		// An unknown thread yields an empty slice, not an error.
		Messages(ctx context.Context, threadID string) ([]Message, error)
		// SaveMessage appends a message to the thread, creating the thread
		// on first write.
		SaveMessage(ctx context.Context, threadID string, msg Message) error
	}
)

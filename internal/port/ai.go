package port

import "context"

// AIProvider abstracts the chat-completion backend used to draft replies to
// customer board posts.
type AIProvider interface {
	// ModelName returns the completion model identifier.
	ModelName() string

	// Complete sends a system/user prompt pair and returns the completion text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

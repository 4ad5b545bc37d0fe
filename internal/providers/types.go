package providers

import "context"

// Message is one turn in a model conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Provider is the interface all LLM backends implement.
// Implementations are stateless and safe for concurrent use.
type Provider interface {
	// Generate sends the message sequence to the model and returns the
	// response text. The call is bounded by the provider's own HTTP
	// timeout; callers never retry.
	Generate(ctx context.Context, messages []Message, maxTokens int) (string, error)

	// DefaultModel returns the backend's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// System builds a system message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: "user", Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: "assistant", Content: content} }

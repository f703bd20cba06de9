// Package llm defines the provider-agnostic completion contract used by the
// chat assistant.
package llm

import "context"

// Message is a single conversation turn in provider-neutral form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call.
type Request struct {
	// System is the system instruction.
	System string
	// Messages is the ordered conversation, oldest first.
	Messages []Message
	// MaxTokens overrides the provider's configured output ceiling when > 0.
	MaxTokens int
}

// Usage holds provider-reported token counts.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Reply is the model's answer.
type Reply struct {
	Text  string
	Model string
	Usage Usage
}

// Client performs completion calls against an external model service.
type Client interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
}

package anthropic

import "github.com/worktab/worktab-api/internal/llm"

// Messages API wire types.
// Reference: https://docs.anthropic.com/en/api/messages

// messagesRequest is the non-streaming request body.
type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []llm.Message `json:"messages"`
}

// contentBlock is a content block in the response.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// messagesResponse is the full non-streaming response.
type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      *llm.Usage     `json:"usage,omitempty"`
}

// Package assistant implements the WorkTab AI chat orchestrator.
package assistant

import (
	"encoding/json"

	"github.com/worktab/worktab-api/internal/domain"
	"github.com/worktab/worktab-api/internal/llm"
	"github.com/worktab/worktab-api/internal/ratelimit"
)

// ChatRequest is the body of POST /api/ai-chat. Fields other than Message
// are decoded leniently; see Handler.decodeRequest.
type ChatRequest struct {
	Message json.RawMessage `json:"message"`
	Context json.RawMessage `json:"context"`
	History json.RawMessage `json:"history"`
	UserID  any             `json:"userId"`
	IsPro   any             `json:"isPro"`
}

// ChatResponse is the success body of POST /api/ai-chat.
type ChatResponse struct {
	Response  string                   `json:"response"`
	Actions   []domain.ActionDirective `json:"actions,omitempty"`
	Usage     llm.Usage                `json:"usage"`
	RateLimit *ratelimit.Status        `json:"rateLimit,omitempty"`
}

// RateLimitResponse is the 429 body.
type RateLimitResponse struct {
	Error      string           `json:"error"`
	Message    string           `json:"message"`
	RetryAfter int              `json:"retryAfter"`
	Limits     ratelimit.Policy `json:"limits"`
	Usage      ratelimit.Usage  `json:"usage"`
}

// TurnResult is the outcome of one successful chat turn.
type TurnResult struct {
	Reply     string
	Actions   []domain.ActionDirective
	Usage     llm.Usage
	RateLimit *ratelimit.Status
}

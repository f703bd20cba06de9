package assistant

import (
	"errors"

	"github.com/worktab/worktab-api/internal/ratelimit"
)

var (
	// ErrEmptyMessage is returned when the message is blank after trimming.
	ErrEmptyMessage = errors.New("message is required")

	// ErrNotConfigured is returned when no model credential is configured.
	ErrNotConfigured = errors.New("AI service not configured")
)

// RateLimitError is returned when the caller exhausted a quota.
type RateLimitError struct {
	Decision ratelimit.Decision
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return "rate limit exceeded: " + e.Decision.Message
}

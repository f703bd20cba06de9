package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidResponse is returned when the provider answered with a success
// status but the body lacks the expected content.
var ErrInvalidResponse = errors.New("invalid response from model provider")

// StatusError is returned when the provider answered with a non-success
// status. Body holds the raw upstream error for server-side logging only.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("model provider returned status %d", e.StatusCode)
}

// Unauthorized reports whether the provider rejected the credential.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Retryable reports whether the failure is transient.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// AsStatusError extracts a StatusError from err.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

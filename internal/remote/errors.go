// Package remote holds the error types and retry policy shared by the HTTP
// clients that talk to external services.
package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: retryable error (status %d): %s", e.Service, e.StatusCode, Truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// StatusError classifies a non-2xx response. 429 and 5xx become
// RetryableError; everything else is returned as a plain error.
func StatusError(service string, status int, body []byte) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return &RetryableError{Service: service, StatusCode: status, Message: string(body)}
	}
	return fmt.Errorf("%s status %d: %s", service, status, Truncate(string(body), 200))
}

// Truncate shortens s to n bytes, appending "..." when cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classification for upstream failures. Callers that absorb member
// failures (council stages 1/2) only care that a call failed; callers with
// key handling (the HTTP service) additionally distinguish auth failures.

// UpstreamError wraps a non-2xx response from the completion API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth retrying at a higher layer.
func (e *UpstreamError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// Auth reports whether the failure indicates a bad or missing credential.
func (e *UpstreamError) Auth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// newUpstreamError builds an UpstreamError with a bounded body excerpt.
func newUpstreamError(statusCode int, body []byte) error {
	excerpt := string(body)
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "..."
	}
	return &UpstreamError{StatusCode: statusCode, Body: excerpt}
}

// IsAuthError returns true if err stems from a rejected credential.
func IsAuthError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Auth()
}

// IsTransient returns true if err may succeed on retry. Network-level
// failures and 429/5xx responses are transient; everything else is not.
func IsTransient(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient()
	}
	var ne *networkError
	return errors.As(err, &ne)
}

// networkError wraps transport-level failures (DNS, timeout, reset).
type networkError struct {
	err error
}

func (e *networkError) Error() string { return e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout marks requests that were cancelled or ran past their deadline.
// It is distinct from plain network failure so callers can tell an abort
// from an unreachable server.
var ErrTimeout = errors.New("request timed out")

// APIError is a non-2xx response from the backend. Endpoint is the request
// path only; it never contains the bearer token.
type APIError struct {
	Status   int
	Detail   string
	Endpoint string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.Status)
}

// IsTimeout reports whether err was caused by cancellation or a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// StatusCode returns the HTTP status of err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// classify wraps transport-level failures so aborts surface as ErrTimeout.
func classify(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", endpoint, ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %v", endpoint, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", endpoint, err)
}

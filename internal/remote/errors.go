package remote

import (
	"fmt"
)

// TransportError represents an HTTP status outside the 2xx range or a
// network failure (StatusCode == 0) while talking to the remote service.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsServerError returns true for 5xx responses from the remote service.
func (e *TransportError) IsServerError() bool {
	return e.StatusCode >= 500
}

// PayloadError represents a response that arrived but could not be used,
// such as a malformed chart or an empty video body.
type PayloadError struct {
	Op  string
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: unusable response: %v", e.Op, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

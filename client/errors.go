package client

import (
	"fmt"
	"time"
)

// OperationInProgress mirrors internal/tarperrs.OperationInProgress on the
// client side of the wire: the server said "keep polling".
type OperationInProgress struct {
	Message    string
	RetryAfter time.Duration
}

func (e *OperationInProgress) Error() string {
	return fmt.Sprintf("tarp: operation in progress: %s (retry after %s)", e.Message, e.RetryAfter)
}

// InvalidServerState mirrors internal/tarperrs.InvalidServerState: retrying
// will not help until external state changes.
type InvalidServerState struct {
	Message string
}

func (e *InvalidServerState) Error() string {
	return fmt.Sprintf("tarp: invalid server state: %s", e.Message)
}

// APIError is any other non-2xx response the server returned, including 404
// and generic 500s. Client also returns a 404 APIError, without sending a
// request, for a name that discovery did not advertise.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tarp: server returned %d: %s", e.StatusCode, e.Message)
}

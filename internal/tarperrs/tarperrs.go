// Package tarperrs defines the handler-raised failure taxonomy shared by the
// server dispatcher and the client proxy.
//
// A handler registered with the registry signals one of three outcomes by
// the error it returns: a retryable OperationInProgress, a non-retryable
// InvalidServerState, or anything else, which the dispatcher treats as a
// generic 500. The client mirrors the same three kinds so a polling loop
// can tell "keep waiting" from "give up" with errors.As.
package tarperrs

import (
	"fmt"
	"time"
)

// DefaultRetryAfter is used when a handler raises OperationInProgress
// without specifying its own delay.
const DefaultRetryAfter = 5 * time.Second

// OperationInProgress signals that an operation is legitimately incomplete
// and the caller should retry after RetryAfter.
type OperationInProgress struct {
	Message    string
	RetryAfter time.Duration
}

// NewOperationInProgress builds an OperationInProgress with the given
// message and retry delay. A zero or negative delay falls back to
// DefaultRetryAfter.
func NewOperationInProgress(message string, retryAfter time.Duration) *OperationInProgress {
	if message == "" {
		message = "Operation not completed. Please wait."
	}
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &OperationInProgress{Message: message, RetryAfter: retryAfter}
}

func (e *OperationInProgress) Error() string { return e.Message }

// InvalidServerState signals that the operation is inapplicable in the
// server's current state and retrying will not help until external state
// changes.
type InvalidServerState struct {
	Message string
}

// NewInvalidServerState builds an InvalidServerState with the given message.
func NewInvalidServerState(message string) *InvalidServerState {
	if message == "" {
		message = "Server is in an invalid state."
	}
	return &InvalidServerState{Message: message}
}

func (e *InvalidServerState) Error() string { return e.Message }

// Kind is the error-kind discriminator carried in the wire envelope's
// "type" field.
type Kind string

const (
	KindOperationInProgress Kind = "OperationInProgress"
	KindInvalidServerState  Kind = "InvalidServerState"
	KindGeneric             Kind = "generic"
)

// Classify maps a handler-returned error to its wire Kind and, for
// OperationInProgress, the retry delay to advertise in Retry-After.
func Classify(err error) (kind Kind, message string, retryAfter time.Duration) {
	switch e := err.(type) {
	case *OperationInProgress:
		return KindOperationInProgress, e.Message, e.RetryAfter
	case *InvalidServerState:
		return KindInvalidServerState, e.Message, 0
	default:
		return KindGeneric, err.Error(), 0
	}
}

// MalformedFrame describes an RPC request frame that fails the shape checks
// in the protocol (stray query string, missing args/kwargs, wrong JSON
// shape). The dispatcher does not return it: it answers a malformed frame
// with a 400 generic error directly. Classify treats a MalformedFrame like
// any other error (KindGeneric).
type MalformedFrame struct {
	Reason string
}

func (e *MalformedFrame) Error() string {
	return fmt.Sprintf("malformed RPC frame: %s", e.Reason)
}

// Package worker provides the client used to dispatch tasks to remote
// specialist workers. Callers adapt transport-specific clients to the
// unified Caller interface used by the executor; the wire protocol is a
// message/send exchange carrying text parts with a correlation id.
package worker

import (
	"context"
	"fmt"
)

// Caller invokes a worker on behalf of the executor. Implementations must
// be safe to invoke from many goroutines concurrently and hold no
// run-scoped mutable state.
type Caller interface {
	// Invoke sends the payload to the worker and returns the concatenated
	// text of the worker's reply parts. Errors are classified via *Error
	// where the failure mode is known.
	Invoke(ctx context.Context, req InvokeRequest) (string, error)
}

// InvokeRequest describes one task dispatch.
type InvokeRequest struct {
	// WorkerID identifies the target worker; it is resolved to an endpoint
	// through the registry.
	WorkerID string
	// TaskID is the correlation id carried as the wire messageId.
	TaskID string
	// ThreadID scopes the exchange to the run.
	ThreadID string
	// Text is the full textual payload for the worker.
	Text string
}

// ErrorKind classifies worker invocation failures so the executor can
// record distinct task errors.
type ErrorKind string

const (
	// ErrorKindTransport covers HTTP-level failures reaching the worker.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindRemote covers structured errors returned by the worker.
	ErrorKindRemote ErrorKind = "remote"
	// ErrorKindDecode covers malformed worker responses.
	ErrorKindDecode ErrorKind = "decode"
)

// Error is a classified worker invocation failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("worker %s error: %s", e.Kind, e.Message)
}

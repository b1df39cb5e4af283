package run

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Load when no run exists for the id.
var ErrNotFound = errors.New("run not found")

// Store persists run contexts across suspend/resume points. Interactive
// mode requires a store that survives the suspension of a run; the
// in-memory implementation under run/inmem is sufficient for single-process
// operation, run/redis and run/mongo for durable deployments.
type Store interface {
	// Save persists the run context, replacing any prior snapshot.
	Save(ctx context.Context, rc *Context) error
	// Load restores the run context for the given id. Returns ErrNotFound
	// when the run is unknown or expired.
	Load(ctx context.Context, runID string) (*Context, error)
}

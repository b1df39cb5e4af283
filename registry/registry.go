// Package registry discovers the specialist workers available to the
// router and exposes their capability cards. Discovery consults an external
// control plane; workers that cannot present a card are silently excluded,
// and a control-plane outage yields an empty worker list rather than an
// error so the planner can report "no workers available" as a normal
// outcome.
package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetCard when the worker is unknown.
var ErrNotFound = errors.New("worker not found")

type (
	// Card is the capability record a worker advertises: identity,
	// human-readable metadata, capability tags, and the endpoint the
	// worker client should invoke.
	Card struct {
		WorkerID     string   `json:"worker_id"`
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		Capabilities []string `json:"capabilities"`
		Skills       []string `json:"skills"`
		// URL is the worker's RPC endpoint as advertised by the control
		// plane.
		URL string `json:"url"`
	}

	// Client enumerates known workers and resolves their cards.
	Client interface {
		// ListWorkers returns the currently-known workers. The list may be
		// empty; an unreachable control plane is reported as an empty list,
		// not an error.
		ListWorkers(ctx context.Context) ([]Card, error)
		// GetCard resolves a single worker's card. Returns ErrNotFound for
		// unknown workers.
		GetCard(ctx context.Context, workerID string) (*Card, error)
	}
)

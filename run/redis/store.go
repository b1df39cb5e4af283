// Package redis provides a Redis-backed run.Store. Snapshots are stored as
// JSON values keyed by run id with an optional TTL so suspended interactive
// runs survive process restarts without growing unbounded.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/itep-ai/router/run"
)

// Client captures the subset of the go-redis client used by the store. It
// is satisfied by *goredis.Client so callers can pass either a real client
// or a fake in tests.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// Options configures the Redis store.
type Options struct {
	// Client is the Redis client to use. Required.
	Client Client
	// KeyPrefix is prepended to run ids to form Redis keys. Defaults to
	// "router:run:".
	KeyPrefix string
	// TTL bounds the retention of persisted runs. Zero means no expiry.
	TTL time.Duration
}

// Store implements run.Store on top of Redis.
type Store struct {
	client Client
	prefix string
	ttl    time.Duration
}

// New builds a Store from the provided options.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "router:run:"
	}
	return &Store{client: opts.Client, prefix: prefix, ttl: opts.TTL}, nil
}

// Save persists the run context under its id, refreshing the TTL.
func (s *Store) Save(ctx context.Context, rc *run.Context) error {
	raw, err := json.Marshal(rc)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+rc.RunID, raw, s.ttl).Err()
}

// Load restores the run context for the given id.
func (s *Store) Load(ctx context.Context, runID string) (*run.Context, error) {
	raw, err := s.client.Get(ctx, s.prefix+runID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, run.ErrNotFound
		}
		return nil, err
	}
	var rc run.Context
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

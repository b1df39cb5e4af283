// Package mongo provides a MongoDB-backed run.Store. The store delegates to
// a thin Client interface so unit tests can exercise it without a running
// database; NewStoreFromCollection adapts a real driver collection.
package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/itep-ai/router/run"
)

// Client captures the persistence operations the store needs.
type Client interface {
	// UpsertRun stores the run snapshot, replacing any prior one.
	UpsertRun(ctx context.Context, rc *run.Context) error
	// LoadRun retrieves the run snapshot. Returns run.ErrNotFound when the
	// run is unknown.
	LoadRun(ctx context.Context, runID string) (*run.Context, error)
}

// Store implements run.Store by delegating to the Mongo client.
type Store struct {
	client Client
}

// NewStore builds a Store using the provided client.
func NewStore(client Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Save persists the run context.
func (s *Store) Save(ctx context.Context, rc *run.Context) error {
	return s.client.UpsertRun(ctx, rc)
}

// Load restores the run context for the given id.
func (s *Store) Load(ctx context.Context, runID string) (*run.Context, error) {
	return s.client.LoadRun(ctx, runID)
}

// collectionClient implements Client on top of a driver collection. Run
// snapshots are stored as one document per run keyed by run_id.
type collectionClient struct {
	coll *mongo.Collection
}

// NewStoreFromCollection builds a Store backed by the given collection.
// Retention is left to deployment (for example an expireAfterSeconds index
// on updated_at).
func NewStoreFromCollection(coll *mongo.Collection) (*Store, error) {
	if coll == nil {
		return nil, errors.New("mongo collection is required")
	}
	return NewStore(&collectionClient{coll: coll})
}

// runIDField is the document field holding the run id. It must match the
// bson tag on run.Context.RunID or upserts stop matching their own
// documents and snapshots duplicate.
const runIDField = "run_id"

func (c *collectionClient) UpsertRun(ctx context.Context, rc *run.Context) error {
	filter := bson.D{{Key: runIDField, Value: rc.RunID}}
	_, err := c.coll.ReplaceOne(ctx, filter, rc, options.Replace().SetUpsert(true))
	return err
}

func (c *collectionClient) LoadRun(ctx context.Context, runID string) (*run.Context, error) {
	filter := bson.D{{Key: runIDField, Value: runID}}
	var rc run.Context
	if err := c.coll.FindOne(ctx, filter).Decode(&rc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, run.ErrNotFound
		}
		return nil, err
	}
	return &rc, nil
}

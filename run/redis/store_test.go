package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itep-ai/router/run"
)

// fakeClient implements Client with an in-process map, mirroring the Set
// and Get semantics the store relies on.
type fakeClient struct {
	values map[string][]byte
	ttls   map[string]time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeClient) Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	raw, ok := value.([]byte)
	if !ok {
		cmd := goredis.NewStatusCmd(ctx)
		cmd.SetErr(assert.AnError)
		return cmd
	}
	f.values[key] = raw
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Get(ctx context.Context, key string) *goredis.StringCmd {
	raw, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(string(raw), nil)
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	client := newFakeClient()
	store, err := New(Options{Client: client, TTL: 24 * time.Hour})
	require.NoError(t, err)

	rc := run.New("provision a VM", run.ModeInteractive, 2)
	rc.Status = run.StatusAwaitingApproval
	require.NoError(t, store.Save(context.Background(), rc))

	got, err := store.Load(context.Background(), rc.RunID)
	require.NoError(t, err)
	assert.Equal(t, rc.RunID, got.RunID)
	assert.Equal(t, run.StatusAwaitingApproval, got.Status)
	assert.Equal(t, 24*time.Hour, client.ttls["router:run:"+rc.RunID])
}

func TestKeyPrefix(t *testing.T) {
	client := newFakeClient()
	store, err := New(Options{Client: client, KeyPrefix: "itep:"})
	require.NoError(t, err)

	rc := run.New("request", run.ModeAuto, 2)
	require.NoError(t, store.Save(context.Background(), rc))
	_, ok := client.values["itep:"+rc.RunID]
	assert.True(t, ok)
}

func TestLoadUnknownRun(t *testing.T) {
	store, err := New(Options{Client: newFakeClient()})
	require.NoError(t, err)
	_, err = store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, run.ErrNotFound)
}

func TestLoadCorruptSnapshot(t *testing.T) {
	client := newFakeClient()
	store, err := New(Options{Client: client})
	require.NoError(t, err)
	client.values["router:run:bad"] = []byte("{not json")
	_, err = store.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, run.ErrNotFound)
}

func TestStoredShapeIsJSON(t *testing.T) {
	client := newFakeClient()
	store, err := New(Options{Client: client})
	require.NoError(t, err)

	rc := run.New("request", run.ModeAuto, 2)
	require.NoError(t, store.Save(context.Background(), rc))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(client.values["router:run:"+rc.RunID], &decoded))
	assert.Equal(t, rc.RunID, decoded["run_id"])
}

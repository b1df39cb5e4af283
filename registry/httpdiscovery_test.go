package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func controlPlane(t *testing.T, workers map[string]*Card) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /workers", func(w http.ResponseWriter, _ *http.Request) {
		var summaries []workerSummary
		for id := range workers {
			summaries = append(summaries, workerSummary{WorkerID: id})
		}
		_ = json.NewEncoder(w).Encode(summaries)
	})
	mux.HandleFunc("GET /workers/{id}/card", func(w http.ResponseWriter, r *http.Request) {
		card, ok := workers[r.PathValue("id")]
		if !ok || card == nil {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(card)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewHTTPClientRequiresBase(t *testing.T) {
	_, err := NewHTTPClient("")
	assert.Error(t, err)
}

func TestListWorkers(t *testing.T) {
	srv := controlPlane(t, map[string]*Card{
		"w1": {WorkerID: "w1", Name: "QuickWorker", URL: "http://w1/rpc", Capabilities: []string{"syntax"}},
	})
	c, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)

	cards, err := c.ListWorkers(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "QuickWorker", cards[0].Name)
	assert.Equal(t, "http://w1/rpc", cards[0].URL)
}

func TestListWorkersSkipsCardless(t *testing.T) {
	srv := controlPlane(t, map[string]*Card{
		"w1": {WorkerID: "w1", Name: "HasCard"},
		"w2": nil,
	})
	c, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)

	cards, err := c.ListWorkers(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "w1", cards[0].WorkerID)
}

func TestListWorkersOutageIsEmpty(t *testing.T) {
	srv := controlPlane(t, nil)
	c, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)
	srv.Close()

	cards, err := c.ListWorkers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestGetCardNotFound(t *testing.T) {
	srv := controlPlane(t, nil)
	c, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)

	_, err = c.GetCard(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetCardFillsWorkerID(t *testing.T) {
	srv := controlPlane(t, map[string]*Card{
		"w1": {Name: "NoID"},
	})
	c, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)

	card, err := c.GetCard(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "w1", card.WorkerID)
}

func TestGetCardEmptyID(t *testing.T) {
	c, err := NewHTTPClient("http://localhost:1")
	require.NoError(t, err)
	_, err = c.GetCard(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

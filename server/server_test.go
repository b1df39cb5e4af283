package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/clue/log"

	"github.com/itep-ai/router/model"
	"github.com/itep-ai/router/registry"
	"github.com/itep-ai/router/router"
	"github.com/itep-ai/router/run"
	"github.com/itep-ai/router/run/inmem"
	"github.com/itep-ai/router/telemetry"
	"github.com/itep-ai/router/worker"
)

// scriptedLLM validates everything, plans one task, and aggregates with a
// fixed response.
type scriptedLLM struct{}

func (scriptedLLM) Complete(_ context.Context, req model.Request) (model.Response, error) {
	content := req.Messages[len(req.Messages)-1].Content
	switch {
	case strings.Contains(content, "guardrail system"):
		return model.Response{Text: `{"is_valid": true, "reasoning": "ok"}`}, nil
	case strings.Contains(content, "task breakdown system"):
		return model.Response{Text: `{
			"analysis": "one task",
			"strategy": "sequential",
			"tasks": [{"description": "check", "worker_id": "w1", "worker_name": "Checker"}]
		}`}, nil
	case strings.Contains(content, "result analyzer"):
		return model.Response{Text: `{"is_sufficient": true, "reasoning": "ok", "replan_strategy": null}`}, nil
	default:
		return model.Response{Text: "synthesized response"}, nil
	}
}

type staticRegistry struct{ cards []registry.Card }

func (r *staticRegistry) ListWorkers(context.Context) ([]registry.Card, error) {
	return r.cards, nil
}

func (r *staticRegistry) GetCard(_ context.Context, workerID string) (*registry.Card, error) {
	for _, c := range r.cards {
		if c.WorkerID == workerID {
			out := c
			return &out, nil
		}
	}
	return nil, registry.ErrNotFound
}

type okWorker struct{}

func (okWorker) Invoke(context.Context, worker.InvokeRequest) (string, error) {
	return "worker output", nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := &staticRegistry{cards: []registry.Card{
		{WorkerID: "w1", Name: "Checker", URL: "http://w1"},
	}}
	rt, err := router.New(router.Options{
		Model:    scriptedLLM{},
		Registry: reg,
		Worker:   okWorker{},
		Store:    inmem.New(),
		Logger:   telemetry.NoopLogger{},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(New(rt, reg).Handler(log.Context(context.Background())))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSubmitAuto(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.URL+"/requests", SubmitRequest{
		Messages: []run.Message{{Role: "user", Content: "check my code"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[router.Result](t, resp)
	assert.Equal(t, run.StatusDone, res.Status)
	assert.Equal(t, "synthesized response", res.FinalResponse)
	assert.Equal(t, []string{"Checker"}, res.AgentsUsed)
}

func TestSubmitValidation(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.URL+"/requests", SubmitRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(srv.URL+"/requests", "application/json", strings.NewReader("{broken"))
	require.NoError(t, err)
	defer func() { _ = raw.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestInteractiveSuspendAndResume(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.URL+"/requests", SubmitRequest{
		Messages: []run.Message{{Role: "user", Content: "check my code"}},
		Mode:     run.ModeInteractive,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	suspended := decode[router.Result](t, resp)
	assert.True(t, suspended.Suspended)
	assert.NotEmpty(t, suspended.ApprovalRequest)

	resumeURL := fmt.Sprintf("%s/runs/%s/resume", srv.URL, suspended.RunID)
	resp = postJSON(t, resumeURL, ResumeRequest{Answer: "yes"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	final := decode[router.Result](t, resp)
	assert.Equal(t, run.StatusDone, final.Status)
}

func TestResumeUnknownRun(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.URL+"/runs/missing/resume", ResumeRequest{Answer: "yes"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResumeNotSuspended(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.URL+"/requests", SubmitRequest{
		Messages: []run.Message{{Role: "user", Content: "check my code"}},
	})
	done := decode[router.Result](t, resp)

	// Terminal runs resume idempotently with their stored result.
	resumeURL := fmt.Sprintf("%s/runs/%s/resume", srv.URL, done.RunID)
	resp = postJSON(t, resumeURL, ResumeRequest{Answer: "yes"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetRun(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.URL+"/requests", SubmitRequest{
		Messages: []run.Message{{Role: "user", Content: "check my code"}},
	})
	res := decode[router.Result](t, resp)

	getResp, err := http.Get(fmt.Sprintf("%s/runs/%s", srv.URL, res.RunID))
	require.NoError(t, err)
	defer func() { _ = getResp.Body.Close() }()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	rc := decode[run.Context](t, getResp)
	assert.Equal(t, res.RunID, rc.RunID)
	assert.Equal(t, run.StatusDone, rc.Status)
}

func TestGetRunNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/runs/missing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListWorkers(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/workers")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cards := decode[[]registry.Card](t, resp)
	require.Len(t, cards, 1)
	assert.Equal(t, "Checker", cards[0].Name)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

// Package httpclient implements worker.Caller over HTTP. Endpoints are
// resolved through the registry once per worker and cached for the life of
// the client.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/itep-ai/router/registry"
	"github.com/itep-ai/router/worker"
)

type (
	// Option configures the HTTP client.
	Option func(*Client)

	// Client implements worker.Caller by POSTing message/send requests to
	// the endpoint advertised on each worker's capability card.
	Client struct {
		registry registry.Client
		http     *http.Client
		headers  http.Header

		mu        sync.RWMutex
		endpoints map[string]string
	}
)

// WithHTTPClient overrides the underlying *http.Client used for requests.
// Per-task deadlines come from the caller's context, so the default client
// carries no timeout of its own.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithHeader adds a static header to all outgoing requests.
func WithHeader(name, value string) Option {
	return func(cl *Client) {
		if cl.headers == nil {
			cl.headers = make(http.Header)
		}
		cl.headers.Add(name, value)
	}
}

// WithBearerToken configures the client to send an Authorization Bearer
// token.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// New constructs a Client that resolves worker endpoints through reg.
func New(reg registry.Client, opts ...Option) (*Client, error) {
	if reg == nil {
		return nil, errors.New("registry client is required")
	}
	cl := &Client{
		registry:  reg,
		http:      &http.Client{},
		headers:   make(http.Header),
		endpoints: make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	if cl.http == nil {
		cl.http = &http.Client{}
	}
	return cl, nil
}

var _ worker.Caller = (*Client)(nil)

// Invoke resolves the worker endpoint and performs the message/send
// exchange. Transport, remote, and decode failures are returned as
// classified *worker.Error values; context errors pass through untouched
// so the executor can distinguish timeout from cancellation.
func (c *Client) Invoke(ctx context.Context, req worker.InvokeRequest) (string, error) {
	endpoint, err := c.resolveEndpoint(ctx, req.WorkerID)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(worker.SendMessageRequest{
		Message: worker.TaskMessage{
			Role:      "user",
			Parts:     []worker.Part{{Kind: "text", Text: req.Text}},
			MessageID: req.TaskID,
		},
		Thread: worker.Thread{ThreadID: req.ThreadID},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &worker.Error{Kind: worker.ErrorKindTransport, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &worker.Error{
			Kind:    worker.ErrorKindTransport,
			Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, endpoint),
		}
	}

	var decoded worker.SendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &worker.Error{Kind: worker.ErrorKindDecode, Message: err.Error()}
	}
	if decoded.Error != nil {
		return "", &worker.Error{Kind: worker.ErrorKindRemote, Message: decoded.Error.Message}
	}
	if decoded.Result == nil {
		return "", &worker.Error{Kind: worker.ErrorKindDecode, Message: "response has neither result nor error"}
	}
	return decoded.Result.Text(), nil
}

// resolveEndpoint fetches the worker card once per worker and caches the
// advertised URL.
func (c *Client) resolveEndpoint(ctx context.Context, workerID string) (string, error) {
	c.mu.RLock()
	endpoint, ok := c.endpoints[workerID]
	c.mu.RUnlock()
	if ok {
		return endpoint, nil
	}

	card, err := c.registry.GetCard(ctx, workerID)
	if err != nil {
		return "", &worker.Error{
			Kind:    worker.ErrorKindTransport,
			Message: fmt.Sprintf("resolve worker %s: %v", workerID, err),
		}
	}
	if card.URL == "" {
		return "", &worker.Error{
			Kind:    worker.ErrorKindTransport,
			Message: fmt.Sprintf("worker %s card has no endpoint", workerID),
		}
	}
	c.mu.Lock()
	c.endpoints[workerID] = card.URL
	c.mu.Unlock()
	return card.URL, nil
}

// Timeout returns an http.Client with the given total request timeout for
// callers that prefer a transport-level bound in addition to context
// deadlines.
func Timeout(d time.Duration) *http.Client {
	return &http.Client{Timeout: d}
}

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"goa.design/clue/log"
)

type (
	// HTTPOption configures the HTTP discovery client.
	HTTPOption func(*HTTPClient)

	// HTTPClient implements Client against a control plane exposing
	// GET {base}/workers (worker summaries) and
	// GET {base}/workers/{id}/card (full capability card).
	HTTPClient struct {
		base string
		http *http.Client
	}

	workerSummary struct {
		WorkerID string `json:"worker_id"`
	}
)

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(cl *HTTPClient) {
		cl.http = c
	}
}

// NewHTTPClient constructs a discovery client for the control plane at
// base (for example, "http://localhost:2024").
func NewHTTPClient(base string, opts ...HTTPOption) (*HTTPClient, error) {
	if base == "" {
		return nil, errors.New("control plane base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid control plane URL: %w", err)
	}
	cl := &HTTPClient{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	return cl, nil
}

var _ Client = (*HTTPClient)(nil)

// ListWorkers enumerates workers from the control plane and resolves each
// one's card. Workers without a card are skipped; an unreachable control
// plane yields an empty list.
func (c *HTTPClient) ListWorkers(ctx context.Context) ([]Card, error) {
	var summaries []workerSummary
	if err := c.getJSON(ctx, c.base+"/workers", &summaries); err != nil {
		log.Warn(ctx, log.KV{K: "msg", V: "worker discovery failed"}, log.KV{K: "err", V: err.Error()})
		return nil, nil
	}
	cards := make([]Card, 0, len(summaries))
	for _, s := range summaries {
		if s.WorkerID == "" {
			continue
		}
		card, err := c.GetCard(ctx, s.WorkerID)
		if err != nil {
			// Cardless workers are not routable; exclude them silently.
			log.Debug(ctx, log.KV{K: "msg", V: "skipping worker without card"}, log.KV{K: "worker_id", V: s.WorkerID})
			continue
		}
		cards = append(cards, *card)
	}
	return cards, nil
}

// GetCard fetches a single worker's capability card.
func (c *HTTPClient) GetCard(ctx context.Context, workerID string) (*Card, error) {
	if workerID == "" {
		return nil, ErrNotFound
	}
	var card Card
	endpoint := fmt.Sprintf("%s/workers/%s/card", c.base, url.PathEscape(workerID))
	if err := c.getJSON(ctx, endpoint, &card); err != nil {
		if errors.Is(err, errStatusNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if card.WorkerID == "" {
		card.WorkerID = workerID
	}
	return &card, nil
}

var errStatusNotFound = errors.New("not found")

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return errStatusNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("control plane status %d for %s", resp.StatusCode, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode control plane response: %w", err)
	}
	return nil
}

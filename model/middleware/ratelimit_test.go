package middleware

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itep-ai/router/model"
)

type stubClient struct {
	calls int
	err   error
}

func (s *stubClient) Complete(context.Context, model.Request) (model.Response, error) {
	s.calls++
	return model.Response{Text: "ok"}, s.err
}

func TestMiddlewareDelegates(t *testing.T) {
	stub := &stubClient{}
	client := NewAdaptiveRateLimiter(60000, 0).Middleware()(stub)

	resp, err := client.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 1, stub.calls)
}

func TestBackoffHalvesBudget(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 120000)
	l.backoff()
	assert.InDelta(t, 30000, l.currentTPM, 1)
	l.backoff()
	assert.InDelta(t, 15000, l.currentTPM, 1)
}

func TestBackoffStopsAtFloor(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 0)
	for i := 0; i < 20; i++ {
		l.backoff()
	}
	assert.InDelta(t, 100, l.currentTPM, 1)
}

func TestProbeRecoversTowardMax(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 66000)
	l.backoff()
	before := l.currentTPM
	l.probe()
	assert.Greater(t, l.currentTPM, before)
	for i := 0; i < 100; i++ {
		l.probe()
	}
	assert.InDelta(t, 66000, l.currentTPM, 1)
}

func TestRateLimitedErrorTriggersBackoff(t *testing.T) {
	stub := &stubClient{err: fmt.Errorf("%w: 429", model.ErrRateLimited)}
	l := NewAdaptiveRateLimiter(60000, 0)
	client := l.Middleware()(stub)

	_, err := client.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.InDelta(t, 30000, l.currentTPM, 1)
}

func TestOtherErrorDoesNotBackoff(t *testing.T) {
	stub := &stubClient{err: assert.AnError}
	l := NewAdaptiveRateLimiter(60000, 0)
	client := l.Middleware()(stub)

	_, err := client.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.InDelta(t, 60000, l.currentTPM, 1)
}

func TestWaitHonorsCancellation(t *testing.T) {
	// A tiny budget forces the limiter to block; cancellation must unblock
	// the caller.
	l := NewAdaptiveRateLimiter(1, 0)
	client := l.Middleware()(&stubClient{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, model.Request{
		Messages:  []model.Message{{Role: model.RoleUser, Content: "some request text"}},
		MaxTokens: 4096,
	})
	assert.Error(t, err)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 500, estimateTokens(model.Request{}))
	got := estimateTokens(model.Request{
		Messages:  []model.Message{{Content: "abcdef"}},
		MaxTokens: 100,
	})
	assert.Equal(t, 6/3+200+100, got)
}

package openai

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itep-ai/router/model"
)

type fakeChat struct {
	lastReq openai.ChatCompletionRequest
	reply   openai.ChatCompletionResponse
	err     error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	return f.reply, f.err
}

func textReply(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: text}}},
		Usage:   openai.Usage{PromptTokens: 7, CompletionTokens: 3},
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{DefaultModel: "m"})
	assert.Error(t, err)
	_, err = New(Options{Client: &fakeChat{}})
	assert.Error(t, err)
}

func TestCompleteTranslatesRequest(t *testing.T) {
	fake := &fakeChat{reply: textReply("hello")}
	c, err := New(Options{Client: fake, DefaultModel: "gpt-4o", MaxTokens: 2048})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "be terse"},
			{Role: model.RoleUser, Content: "hi"},
		},
		Temperature: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 7, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)

	assert.Equal(t, "gpt-4o", fake.lastReq.Model)
	assert.Equal(t, 2048, fake.lastReq.MaxTokens)
	require.Len(t, fake.lastReq.Messages, 2)
	assert.Equal(t, "system", fake.lastReq.Messages[0].Role)
	assert.InDelta(t, 0.5, fake.lastReq.Temperature, 1e-6)
}

func TestCompleteRequiresMessages(t *testing.T) {
	c, err := New(Options{Client: &fakeChat{}, DefaultModel: "m"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), model.Request{})
	assert.Error(t, err)
}

func TestCompleteNoChoices(t *testing.T) {
	c, err := New(Options{Client: &fakeChat{}, DefaultModel: "m"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	assert.Error(t, err)
}

func TestCompleteRateLimited(t *testing.T) {
	fake := &fakeChat{err: &openai.APIError{HTTPStatusCode: 429}}
	c, err := New(Options{Client: fake, DefaultModel: "m"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

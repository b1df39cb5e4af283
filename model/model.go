// Package model provides a provider-agnostic abstraction over chat
// completion APIs (Anthropic, OpenAI) so the router can invoke an LLM
// without coupling to specific SDKs. Implementations translate the
// normalized Request/Response into provider-specific formats.
package model

import (
	"context"
	"errors"
)

type (
	// Client defines the contract the router uses to invoke LLM calls.
	// Implementations wrap provider SDKs and must be safe for concurrent
	// use across multiple router phases.
	Client interface {
		// Complete sends a chat completion request to the model provider
		// and returns the generated response. Returns an error if the model
		// is unavailable, quota is exceeded, or the request is malformed.
		Complete(ctx context.Context, req Request) (Response, error)
	}

	// Role identifies the author of a conversation message.
	Role string

	// Message is a single chat message submitted to the provider.
	Message struct {
		Role    Role
		Content string
	}

	// Request captures the normalized parameters for a model invocation.
	Request struct {
		// Model identifies the target model using the provider-specific
		// identifier. Empty means use the client's configured default.
		Model string
		// Messages is the ordered chat history, including the system
		// prompt, provided to the model.
		Messages []Message
		// Temperature controls sampling temperature. Zero means use the
		// provider default.
		Temperature float32
		// MaxTokens caps the number of completion tokens. Zero means use
		// the client's configured default.
		MaxTokens int
	}

	// Response wraps the generated content returned by the provider.
	Response struct {
		// Text is the concatenated assistant text output.
		Text string
		// Usage reports token usage when the provider makes it available.
		Usage Usage
	}

	// Usage reports token consumption for a single invocation.
	Usage struct {
		InputTokens  int
		OutputTokens int
	}
)

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting. Middlewares use it to back off.
var ErrRateLimited = errors.New("model: rate limited")

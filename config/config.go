// Package config loads router settings from the environment. Every value
// has a sane default so a bare process starts against a local control
// plane with the in-memory store.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type (
	// Config carries the full router configuration.
	Config struct {
		// HTTPAddr is the listen address of the router's HTTP API.
		HTTPAddr string

		// Provider selects the LLM backend, "anthropic" or "openai".
		Provider string
		// Model is the provider-specific model identifier.
		Model string
		// AnthropicAPIKey authenticates against the Anthropic API.
		AnthropicAPIKey string
		// OpenAIAPIKey authenticates against the OpenAI API.
		OpenAIAPIKey string
		// MaxTokens caps completion tokens per LLM call.
		MaxTokens int
		// LLMTimeout bounds each individual LLM call.
		LLMTimeout time.Duration
		// RateLimitTPM is the initial tokens-per-minute budget for the
		// adaptive rate limiter. Zero disables the limiter.
		RateLimitTPM int

		// ControlPlaneURL is the base URL of the worker control plane.
		ControlPlaneURL string
		// DiscoveryTTL bounds how long discovered worker cards are cached.
		DiscoveryTTL time.Duration
		// WorkerToken is an optional bearer token sent to workers.
		WorkerToken string

		// MaxReplans bounds how many times a run may return to planning.
		MaxReplans int
		// TaskTimeout bounds each worker task invocation.
		TaskTimeout time.Duration
		// RunDeadline bounds an entire run from validation to aggregation.
		RunDeadline time.Duration

		// Store selects the run store backend: "memory", "redis" or "mongo".
		Store string
		// RedisURL is the redis connection URL when Store is "redis".
		RedisURL string
		// MongoURI is the mongo connection URI when Store is "mongo".
		MongoURI string
		// MongoDatabase is the mongo database holding the runs collection.
		MongoDatabase string
		// RunTTL bounds how long terminal runs are retained in the store.
		RunTTL time.Duration

		// Debug enables debug-level logging.
		Debug bool
	}
)

// Defaults returns the configuration used when no environment overrides
// are present.
func Defaults() Config {
	return Config{
		HTTPAddr:        ":8080",
		Provider:        "anthropic",
		Model:           "claude-sonnet-4-5",
		MaxTokens:       4096,
		LLMTimeout:      60 * time.Second,
		RateLimitTPM:    60000,
		ControlPlaneURL: "http://localhost:9000",
		DiscoveryTTL:    time.Minute,
		MaxReplans:      2,
		TaskTimeout:     300 * time.Second,
		RunDeadline:     15 * time.Minute,
		Store:           "memory",
		MongoDatabase:   "router",
		RunTTL:          24 * time.Hour,
	}
}

// Load builds the configuration from the environment on top of Defaults.
func Load() (Config, error) {
	cfg := Defaults()
	cfg.HTTPAddr = getString("ROUTER_HTTP_ADDR", cfg.HTTPAddr)
	cfg.Provider = getString("ROUTER_LLM_PROVIDER", cfg.Provider)
	cfg.Model = getString("ROUTER_LLM_MODEL", cfg.Model)
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.ControlPlaneURL = getString("ROUTER_CONTROL_PLANE_URL", cfg.ControlPlaneURL)
	cfg.WorkerToken = os.Getenv("ROUTER_WORKER_TOKEN")
	cfg.Store = getString("ROUTER_STORE", cfg.Store)
	cfg.RedisURL = getString("ROUTER_REDIS_URL", cfg.RedisURL)
	cfg.MongoURI = getString("ROUTER_MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getString("ROUTER_MONGO_DATABASE", cfg.MongoDatabase)

	var err error
	if cfg.MaxTokens, err = getInt("ROUTER_LLM_MAX_TOKENS", cfg.MaxTokens); err != nil {
		return cfg, err
	}
	if cfg.RateLimitTPM, err = getInt("ROUTER_LLM_RATE_TPM", cfg.RateLimitTPM); err != nil {
		return cfg, err
	}
	if cfg.MaxReplans, err = getInt("ROUTER_MAX_REPLANS", cfg.MaxReplans); err != nil {
		return cfg, err
	}
	if cfg.LLMTimeout, err = getDuration("ROUTER_LLM_TIMEOUT", cfg.LLMTimeout); err != nil {
		return cfg, err
	}
	if cfg.TaskTimeout, err = getDuration("ROUTER_TASK_TIMEOUT", cfg.TaskTimeout); err != nil {
		return cfg, err
	}
	if cfg.RunDeadline, err = getDuration("ROUTER_RUN_DEADLINE", cfg.RunDeadline); err != nil {
		return cfg, err
	}
	if cfg.DiscoveryTTL, err = getDuration("ROUTER_DISCOVERY_TTL", cfg.DiscoveryTTL); err != nil {
		return cfg, err
	}
	if cfg.RunTTL, err = getDuration("ROUTER_RUN_TTL", cfg.RunTTL); err != nil {
		return cfg, err
	}
	cfg.Debug = os.Getenv("ROUTER_DEBUG") != ""

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown LLM provider %q", c.Provider)
	}
	switch c.Store {
	case "memory", "redis", "mongo":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store)
	}
	if c.Store == "redis" && c.RedisURL == "" {
		return fmt.Errorf("config: ROUTER_REDIS_URL is required for the redis store")
	}
	if c.Store == "mongo" && c.MongoURI == "" {
		return fmt.Errorf("config: ROUTER_MONGO_URI is required for the mongo store")
	}
	if c.MaxReplans < 0 {
		return fmt.Errorf("config: max replans must not be negative")
	}
	return nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

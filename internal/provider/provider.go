package provider

import (
	"errors"
	"fmt"
	"time"
)

// Spec is the static configuration of one LLM provider. Immutable at runtime.
type Spec struct {
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKeyEnv string `json:"api_key_env"`
	Priority  int    `json:"priority"`
}

// Request is one text-in request against a provider.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Reply is the result of one successful provider call.
type Reply struct {
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Text       string        `json:"text"`
	TokenCount int           `json:"token_count"`
	Latency    time.Duration `json:"latency"`
	CalledAt   time.Time     `json:"called_at"`
}

// ErrNoProviders is returned by the chain when every configured provider is
// missing its credential.
var ErrNoProviders = errors.New("no credentialed providers configured")

// ErrAllProvidersFailed is returned by the chain when every credentialed
// provider failed. The wrapped error lists each provider's final failure.
var ErrAllProvidersFailed = errors.New("all providers failed")

// APIError is a non-2xx response from a provider endpoint.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether the failure is transient: rate limits and server
// errors are worth another attempt, credential and request errors are not.
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

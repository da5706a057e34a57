package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultCallTimeout = 60 * time.Second

// Client calls OpenAI-compatible chat completion endpoints. All configured
// providers (DeepSeek, OpenAI, OpenRouter, local gateways) speak this shape.
type Client struct {
	httpClient  *http.Client
	callTimeout time.Duration
	now         func() time.Time
}

// NewClient creates a Client with the given per-call timeout. A timeout <= 0
// falls back to 60s.
func NewClient(callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Client{
		httpClient:  &http.Client{},
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// chatMessage is a chat message in the OpenAI wire format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the JSON body for POST /chat/completions.
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream"`
}

// chatResponse is the non-streaming completion response.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Invoke sends one chat completion request to the provider described by spec,
// authenticated with apiKey. Each invocation counts one attempt: the timeout
// is per call, and retry policy lives with the caller.
func (c *Client) Invoke(ctx context.Context, spec Spec, apiKey string, req Request) (Reply, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:     spec.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshaling request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	endpoint := strings.TrimRight(spec.Endpoint, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("creating request for %s: %w", spec.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	started := c.now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("calling %s: %w", spec.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Reply{}, &APIError{
			Provider: spec.Name,
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(respBody)),
		}
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Reply{}, fmt.Errorf("decoding %s response: %w", spec.Name, err)
	}
	if len(result.Choices) == 0 {
		return Reply{}, fmt.Errorf("%s: response contains no choices", spec.Name)
	}

	return Reply{
		Provider:   spec.Name,
		Model:      spec.Model,
		Text:       result.Choices[0].Message.Content,
		TokenCount: result.Usage.TotalTokens,
		Latency:    c.now().Sub(started),
		CalledAt:   started,
	}, nil
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInvoke_Success(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "reply text"}},
			},
			"usage": map[string]any{"total_tokens": 42},
		})
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	spec := Spec{Name: "test", Endpoint: srv.URL, Model: "test-model"}
	reply, err := c.Invoke(context.Background(), spec, "k123", Request{
		System: "sys", Prompt: "hello", MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Invoke() = %v, want nil", err)
	}
	if gotAuth != "Bearer k123" {
		t.Errorf("Authorization = %q, want Bearer k123", gotAuth)
	}
	if gotBody.Model != "test-model" || len(gotBody.Messages) != 2 {
		t.Errorf("request body = %+v, want model + system and user messages", gotBody)
	}
	if gotBody.Messages[0].Role != "system" || gotBody.Messages[1].Role != "user" {
		t.Errorf("message roles = %s/%s, want system/user", gotBody.Messages[0].Role, gotBody.Messages[1].Role)
	}
	if reply.Text != "reply text" {
		t.Errorf("Text = %q, want 'reply text'", reply.Text)
	}
	if reply.TokenCount != 42 {
		t.Errorf("TokenCount = %d, want 42", reply.TokenCount)
	}
	if reply.Provider != "test" {
		t.Errorf("Provider = %q, want test", reply.Provider)
	}
}

func TestInvoke_NoSystemMessageWhenEmpty(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "x"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	_, err := c.Invoke(context.Background(), Spec{Name: "t", Endpoint: srv.URL}, "k", Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want a single user message", gotBody.Messages)
	}
}

func TestInvoke_ErrorStatus(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"bad credentials", http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			c := NewClient(5 * time.Second)
			_, err := c.Invoke(context.Background(), Spec{Name: "t", Endpoint: srv.URL}, "k", Request{Prompt: "p"})

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Invoke() = %v, want *APIError", err)
			}
			if apiErr.Status != tc.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tc.status)
			}
			if apiErr.Retryable() != tc.retryable {
				t.Errorf("Retryable() = %v, want %v", apiErr.Retryable(), tc.retryable)
			}
		})
	}
}

func TestInvoke_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	_, err := c.Invoke(context.Background(), Spec{Name: "t", Endpoint: srv.URL}, "k", Request{Prompt: "p"})
	if err == nil {
		t.Fatal("Invoke() = nil, want error for empty choices")
	}
}

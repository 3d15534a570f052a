package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIClient(ProviderConfig{
		Provider: ProviderOpenAI,
		APIKey:   "sk-test",
		BaseURL:  server.URL + "/v1/",
	})
}

func TestOpenAIClient_Complete(t *testing.T) {
	var body map[string]any
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 2, "total_tokens": 11}
		}`)
	})

	resp, err := client.Complete(context.Background(), &Request{
		Prompt:      "Say hello",
		System:      "Be polite.",
		Temperature: 0.5,
		MaxTokens:   20,
		Stop:        []string{"END"},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, []any{"END"}, body["stop"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)

	assert.Equal(t, "Hello there", resp.Content)
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "chatcmpl-1", resp.RequestID)
	assert.Equal(t, Usage{PromptTokens: 9, CompletionTokens: 2, TotalTokens: 11}, resp.Usage)
}

func TestOpenAIClient_Complete_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		kind      ErrorKind
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, KindAuth, false},
		{"rate_limited", http.StatusTooManyRequests, KindRateLimit, true},
		{"server_error", http.StatusInternalServerError, KindServer, true},
		{"bad_request", http.StatusBadRequest, KindInvalidRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error": {"message": "nope", "type": "test_error"}}`)
			})

			_, err := client.Complete(context.Background(), &Request{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestOpenAIClient_Complete_Empty(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "c", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini", "choices": []}`)
	})

	_, err := client.Complete(context.Background(), &Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_CompleteStream(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
			`[DONE]`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
	})

	ch, err := client.CompleteStream(context.Background(), &Request{Prompt: "x"})
	require.NoError(t, err)

	var (
		text string
		last StreamChunk
	)
	for c := range ch {
		require.NoError(t, c.Err)
		text += c.Delta
		last = c
	}
	assert.Equal(t, "Hello", text)
	assert.True(t, last.Done)
	assert.Equal(t, "stop", last.FinishReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 5, last.Usage.TotalTokens)
}

func TestOpenAIClient_CompleteStream_OpenFailure(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "bad key"}}`)
	})

	ch, err := client.CompleteStream(context.Background(), &Request{Prompt: "x"})
	assert.Nil(t, ch)
	require.Error(t, err)
	assert.Equal(t, KindAuth, KindOf(err))
}

func TestOpenAIClient_Embed(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.25, -0.5]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 1, "total_tokens": 1}
		}`)
	})

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, -0.5}, vec)
}

func TestOpenAIClient_HealthCheck(t *testing.T) {
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/models"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object": "list", "data": []}`)
	})

	assert.NoError(t, client.HealthCheck(context.Background()))
}

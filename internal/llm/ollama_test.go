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

func TestNewOllamaClient_Defaults(t *testing.T) {
	client := NewOllamaClient(ProviderConfig{})

	assert.Equal(t, defaultOllamaURL, client.baseURL)
	assert.Equal(t, defaultOllamaModel, client.model)
	assert.Equal(t, defaultOllamaEmbeddingModel, client.embeddingModel)
	assert.Equal(t, ProviderOllama, client.Name())

	d := client.Describe()
	assert.True(t, d.Local)
	assert.True(t, d.Free)
	assert.True(t, d.SupportsEmbeddings)
}

func TestOllamaClient_Complete(t *testing.T) {
	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"model":       "llama3.1:8b",
			"response":    "Paris is the capital of France.",
			"done":        true,
			"done_reason": "stop",
		})
	}))
	defer server.Close()

	client := NewOllamaClient(ProviderConfig{BaseURL: server.URL + "/", DefaultModel: "llama3.1:8b"})
	resp, err := client.Complete(context.Background(), &Request{
		Prompt:      "What is the capital of France?",
		System:      "Be brief.",
		Temperature: 0.2,
		MaxTokens:   64,
		Stop:        []string{"\n\n"},
	})
	require.NoError(t, err)

	assert.Equal(t, "llama3.1:8b", got.Model)
	assert.Equal(t, "Be brief.", got.System)
	assert.False(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.Equal(t, 64, got.Options.NumPredict)
	assert.Equal(t, []string{"\n\n"}, got.Options.Stop)

	assert.Equal(t, "Paris is the capital of France.", resp.Content)
	assert.Equal(t, ProviderOllama, resp.Provider)
	assert.Equal(t, "stop", resp.FinishReason)
	// no counts from the server, so usage is estimated
	assert.Greater(t, resp.Usage.PromptTokens, 0)
	assert.Greater(t, resp.Usage.CompletionTokens, 0)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestOllamaClient_Complete_ServerCounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model":"m","response":"ok","done":true,"prompt_eval_count":12,"eval_count":3}`)
	}))
	defer server.Close()

	client := NewOllamaClient(ProviderConfig{BaseURL: server.URL})
	resp, err := client.Complete(context.Background(), &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, resp.Usage)
}

func TestOllamaClient_Complete_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		retryable bool
	}{
		{"server_error", http.StatusInternalServerError, `{"error":"boom"}`, KindServer, true},
		{"model_not_found", http.StatusNotFound, `{"error":"model not found"}`, KindInvalidRequest, false},
		{"empty_response", http.StatusOK, `{"model":"m","response":"  ","done":true}`, KindEmptyResponse, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewOllamaClient(ProviderConfig{BaseURL: server.URL})
			_, err := client.Complete(context.Background(), &Request{Prompt: "hi"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestOllamaClient_Complete_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewOllamaClient(ProviderConfig{BaseURL: url})
	_, err := client.Complete(context.Background(), &Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestOllamaClient_CompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.True(t, req.Stream)

		lines := []string{
			`{"model":"m","response":"Hello","done":false}`,
			`{"model":"m","response":", world","done":false}`,
			`{"model":"m","response":"","done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":2}`,
		}
		fmt.Fprint(w, strings.Join(lines, "\n")+"\n")
	}))
	defer server.Close()

	client := NewOllamaClient(ProviderConfig{BaseURL: server.URL})
	ch, err := client.CompleteStream(context.Background(), &Request{Prompt: "hi"})
	require.NoError(t, err)

	var (
		text string
		last StreamChunk
	)
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Delta
		last = chunk
	}

	assert.Equal(t, "Hello, world", text)
	assert.True(t, last.Done)
	assert.Equal(t, "stop", last.FinishReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 6, last.Usage.TotalTokens)
}

func TestOllamaClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "nomic-embed-text", body["model"])
		assert.Equal(t, "hello", body["prompt"])
		fmt.Fprint(w, `{"embedding":[0.1,0.2,0.3]}`)
	}))
	defer server.Close()

	client := NewOllamaClient(ProviderConfig{BaseURL: server.URL})
	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestOllamaClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[{"name":"llama3.2:3b"},{"name":"qwen2.5-coder:7b"},{"name":"mistral:latest"}]}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tests := []struct {
		model   string
		healthy bool
	}{
		{"", true},
		{"qwen2.5-coder:7b", true},
		{"mistral", true},
		{"phi3:mini", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			client := NewOllamaClient(ProviderConfig{BaseURL: server.URL, DefaultModel: tt.model})
			err := client.HealthCheck(context.Background())
			if tt.healthy {
				assert.NoError(t, err)
				return
			}
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, KindInvalidRequest, pe.Kind)
			assert.Contains(t, err.Error(), "not pulled")
		})
	}

	models, err := NewOllamaClient(ProviderConfig{BaseURL: server.URL}).listModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:3b", "qwen2.5-coder:7b", "mistral:latest"}, models)
}

func TestOllamaClient_HealthCheck_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewOllamaClient(ProviderConfig{BaseURL: url})
	assert.Error(t, client.HealthCheck(context.Background()))
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuggingFaceClient_Complete(t *testing.T) {
	var (
		got      hfRequest
		authHdr  string
		gotModel string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel = r.URL.Path
		authHdr = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `[{"generated_text":"Go is a statically typed language."}]`)
	}))
	defer server.Close()

	client := NewHuggingFaceClient(ProviderConfig{
		BaseURL:      server.URL,
		APIKey:       "hf_test",
		DefaultModel: "mistralai/Mistral-7B-Instruct-v0.3",
	})
	resp, err := client.Complete(context.Background(), &Request{
		Prompt:    "Describe Go.",
		System:    "You are terse.",
		MaxTokens: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, "/models/mistralai/Mistral-7B-Instruct-v0.3", gotModel)
	assert.Equal(t, "Bearer hf_test", authHdr)
	assert.Equal(t, "You are terse.\n\nDescribe Go.", got.Inputs)
	assert.Equal(t, 50, got.Parameters.MaxNewTokens)
	assert.False(t, got.Parameters.ReturnFullText)

	assert.Equal(t, "Go is a statically typed language.", resp.Content)
	assert.Equal(t, ProviderHuggingFace, resp.Provider)
	assert.Greater(t, resp.Usage.TotalTokens, 0)
}

func TestHuggingFaceClient_Complete_SingleObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"generated_text":"single"}`)
	}))
	defer server.Close()

	client := NewHuggingFaceClient(ProviderConfig{BaseURL: server.URL})
	resp, err := client.Complete(context.Background(), &Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "single", resp.Content)
}

func TestHuggingFaceClient_ModelLoadingIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"Model is currently loading","estimated_time":20.0}`)
	}))
	defer server.Close()

	client := NewHuggingFaceClient(ProviderConfig{BaseURL: server.URL})
	_, err := client.Complete(context.Background(), &Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, KindModelLoading, KindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestHuggingFaceClient_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Invalid credentials"}`)
	}))
	defer server.Close()

	client := NewHuggingFaceClient(ProviderConfig{BaseURL: server.URL, APIKey: "bad"})
	_, err := client.Complete(context.Background(), &Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, KindAuth, KindOf(err))
	assert.False(t, IsRetryable(err))
}

func TestHuggingFaceClient_EmptyGeneration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := NewHuggingFaceClient(ProviderConfig{BaseURL: server.URL})
	_, err := client.Complete(context.Background(), &Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestHuggingFaceClient_CompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"generated_text":"whole answer"}]`)
	}))
	defer server.Close()

	client := NewHuggingFaceClient(ProviderConfig{BaseURL: server.URL})
	ch, err := client.CompleteStream(context.Background(), &Request{Prompt: "x"})
	require.NoError(t, err)

	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "whole answer", chunks[0].Delta)
	assert.True(t, chunks[1].Done)
}

func TestHuggingFaceClient_Embed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []float64
	}{
		{"flat", `[0.5,0.25]`, []float64{0.5, 0.25}},
		{"nested", `[[0.5,0.25]]`, []float64{0.5, 0.25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/pipeline/feature-extraction/"+defaultHuggingFaceEmbeddingModel, r.URL.Path)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewHuggingFaceClient(ProviderConfig{BaseURL: server.URL})
			vec, err := client.Embed(context.Background(), "hello")
			require.NoError(t, err)
			assert.Equal(t, tt.want, vec)
		})
	}
}

func TestHuggingFaceClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		fmt.Fprint(w, `{"loaded":true}`)
	}))
	defer server.Close()

	client := NewHuggingFaceClient(ProviderConfig{BaseURL: server.URL})
	assert.NoError(t, client.HealthCheck(context.Background()))
}

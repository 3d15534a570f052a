package llm

import (
	"context"
	"time"
)

// Provider represents an LLM provider
type Provider string

const (
	ProviderOpenAI      Provider = "openai"      // commercial-A
	ProviderAnthropic   Provider = "anthropic"   // commercial-B
	ProviderOllama      Provider = "ollama"      // local inference server
	ProviderHuggingFace Provider = "huggingface" // free hosted inference
	ProviderMock        Provider = "mock"
)

// AllProviders lists every supported provider in registration order
var AllProviders = []Provider{
	ProviderOllama,
	ProviderHuggingFace,
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderMock,
}

// IsLocal reports whether the provider runs without a remote API
func (p Provider) IsLocal() bool {
	return p == ProviderOllama || p == ProviderMock
}

// IsFree reports whether the provider costs nothing per token
func (p Provider) IsFree() bool {
	return p == ProviderOllama || p == ProviderHuggingFace || p == ProviderMock
}

// Valid reports whether p is one of the known providers
func (p Provider) Valid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// Request represents an LLM completion request
type Request struct {
	Prompt           string
	System           string
	Model            string // overwritten per attempt by the dispatcher; adapters use their default when empty
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
	Stream           bool
	Metadata         map[string]string
}

// WithModel returns a shallow copy of the request targeting model
func (r *Request) WithModel(model string) *Request {
	c := *r
	c.Model = model
	return &c
}

// Usage holds token accounting for a single call
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response represents an LLM completion response
type Response struct {
	Content       string        `json:"content"`
	Provider      Provider      `json:"provider"`
	Model         string        `json:"model"`
	Usage         Usage         `json:"usage"`
	FinishReason  string        `json:"finish_reason,omitempty"`
	Latency       time.Duration `json:"latency"`
	EstimatedCost float64       `json:"estimated_cost_usd"`
	RequestID     string        `json:"request_id,omitempty"`
}

// StreamChunk is one element of a streaming response
type StreamChunk struct {
	Delta        string
	Done         bool
	FinishReason string
	Usage        *Usage
	Err          error
}

// Descriptor describes a provider adapter for health and listing endpoints
type Descriptor struct {
	Provider           Provider `json:"provider"`
	BaseURL            string   `json:"base_url,omitempty"`
	DefaultModel       string   `json:"default_model"`
	EmbeddingModel     string   `json:"embedding_model,omitempty"`
	Local              bool     `json:"local"`
	Free               bool     `json:"free"`
	SupportsEmbeddings bool     `json:"supports_embeddings"`
	SupportsStreaming  bool     `json:"supports_streaming"`
}

// Client is the interface for LLM providers
type Client interface {
	Name() Provider
	Complete(ctx context.Context, req *Request) (*Response, error)
	CompleteStream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	HealthCheck(ctx context.Context) error
	Describe() Descriptor
}

// ProviderConfig holds provider-specific configuration
type ProviderConfig struct {
	Provider          Provider
	Enabled           bool
	BaseURL           string
	APIKey            string
	DefaultModel      string
	EmbeddingModel    string
	Timeout           time.Duration
	RequestsPerMinute int // 0 = unlimited
	TokensPerMinute   int // 0 = unlimited
}

// EstimateTokens approximates the token count of text at ~4 characters per token
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

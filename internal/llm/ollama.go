package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL            = "http://localhost:11434"
	defaultOllamaModel          = "llama3.2:3b"
	defaultOllamaEmbeddingModel = "nomic-embed-text"
)

// OllamaClient implements the Client interface for a local Ollama server
type OllamaClient struct {
	baseURL        string
	model          string
	embeddingModel string
	transport      *jsonTransport
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(cfg ProviderConfig) *OllamaClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = defaultOllamaModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultOllamaEmbeddingModel
	}

	return &OllamaClient{
		baseURL:        baseURL,
		model:          model,
		embeddingModel: embeddingModel,
		transport: &jsonTransport{
			provider: ProviderOllama,
			// Deadlines come from the caller's context; local generation can be slow.
			httpClient: &http.Client{},
		},
	}
}

func (c *OllamaClient) Name() Provider {
	return ProviderOllama
}

func (c *OllamaClient) Describe() Descriptor {
	return Descriptor{
		Provider:           ProviderOllama,
		BaseURL:            c.baseURL,
		DefaultModel:       c.model,
		EmbeddingModel:     c.embeddingModel,
		Local:              true,
		Free:               true,
		SupportsEmbeddings: true,
		SupportsStreaming:  true,
	}
}

// ollamaGenerateRequest represents the Ollama /api/generate request format
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature      float64  `json:"temperature,omitempty"`
	NumPredict       int      `json:"num_predict,omitempty"`
	TopP             float64  `json:"top_p,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
}

// ollamaGenerateResponse is both the full response and a single NDJSON stream line
type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (c *OllamaClient) buildRequest(req *Request, stream bool) (ollamaGenerateRequest, string) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	r := ollamaGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: stream,
	}
	if req.Temperature > 0 || req.MaxTokens > 0 || req.TopP > 0 || len(req.Stop) > 0 ||
		req.FrequencyPenalty != 0 || req.PresencePenalty != 0 {
		r.Options = &ollamaOptions{
			Temperature:      req.Temperature,
			NumPredict:       req.MaxTokens,
			TopP:             req.TopP,
			FrequencyPenalty: req.FrequencyPenalty,
			PresencePenalty:  req.PresencePenalty,
			Stop:             req.Stop,
		}
	}
	return r, model
}

func (c *OllamaClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	body, model := c.buildRequest(req, false)

	var out ollamaGenerateResponse
	if err := c.transport.doJSON(ctx, http.MethodPost, c.baseURL+"/api/generate", model, body, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, NewProviderError(ProviderOllama, model, KindServer, fmt.Errorf("ollama error: %s", out.Error))
	}
	if strings.TrimSpace(out.Response) == "" {
		return nil, NewProviderError(ProviderOllama, model, KindEmptyResponse, ErrEmptyResponse)
	}

	if out.Model != "" {
		model = out.Model
	}
	return &Response{
		Content:      out.Response,
		Provider:     ProviderOllama,
		Model:        model,
		Usage:        ollamaUsage(req, out.Response, out.PromptEvalCount, out.EvalCount),
		FinishReason: out.DoneReason,
		Latency:      time.Since(start),
	}, nil
}

// ollamaUsage prefers server-reported counts and estimates the rest
func ollamaUsage(req *Request, completion string, promptCount, evalCount int) Usage {
	if promptCount == 0 {
		promptCount = EstimateTokens(req.System) + EstimateTokens(req.Prompt)
	}
	if evalCount == 0 {
		evalCount = EstimateTokens(completion)
	}
	return Usage{
		PromptTokens:     promptCount,
		CompletionTokens: evalCount,
		TotalTokens:      promptCount + evalCount,
	}
}

func (c *OllamaClient) CompleteStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	body, model := c.buildRequest(req, true)

	resp, err := c.transport.do(ctx, http.MethodPost, c.baseURL+"/api/generate", model, body)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var content strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var part ollamaGenerateResponse
			if err := json.Unmarshal(line, &part); err != nil {
				sendChunk(ctx, ch, StreamChunk{Err: NewProviderError(ProviderOllama, model, KindServer, fmt.Errorf("failed to decode stream: %w", err))})
				return
			}
			if part.Error != "" {
				sendChunk(ctx, ch, StreamChunk{Err: NewProviderError(ProviderOllama, model, KindServer, fmt.Errorf("ollama error: %s", part.Error))})
				return
			}

			if part.Response != "" {
				content.WriteString(part.Response)
				if !sendChunk(ctx, ch, StreamChunk{Delta: part.Response}) {
					return
				}
			}
			if part.Done {
				usage := ollamaUsage(req, content.String(), part.PromptEvalCount, part.EvalCount)
				sendChunk(ctx, ch, StreamChunk{Done: true, FinishReason: part.DoneReason, Usage: &usage})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			sendChunk(ctx, ch, StreamChunk{Err: TransportError(ctx, ProviderOllama, model, err)})
			return
		}
		if ctx.Err() != nil {
			sendChunk(ctx, ch, StreamChunk{Err: TransportError(ctx, ProviderOllama, model, ctx.Err())})
			return
		}
		usage := ollamaUsage(req, content.String(), 0, 0)
		sendChunk(ctx, ch, StreamChunk{Done: true, Usage: &usage})
	}()

	return ch, nil
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	payload := map[string]string{
		"model":  c.embeddingModel,
		"prompt": text,
	}

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := c.transport.doJSON(ctx, http.MethodPost, c.baseURL+"/api/embeddings", c.embeddingModel, payload, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, NewProviderError(ProviderOllama, c.embeddingModel, KindEmptyResponse, ErrEmptyResponse)
	}
	return out.Embedding, nil
}

// HealthCheck succeeds when the server answers and the default model is pulled
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	models, err := c.listModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if m == c.model || m == c.model+":latest" {
			return nil
		}
	}
	return NewProviderError(ProviderOllama, c.model, KindInvalidRequest, fmt.Errorf("model %s is not pulled", c.model))
}

// listModels returns the names of locally pulled models
func (c *OllamaClient) listModels(ctx context.Context) ([]string, error) {
	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.transport.doJSON(ctx, http.MethodGet, c.baseURL+"/api/tags", "", nil, &result); err != nil {
		return nil, err
	}

	models := make([]string, len(result.Models))
	for i, m := range result.Models {
		models[i] = m.Name
	}
	return models, nil
}

// sendChunk delivers a chunk unless ctx is done first
func sendChunk(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

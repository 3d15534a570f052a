package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHuggingFaceURL            = "https://api-inference.huggingface.co"
	defaultHuggingFaceModel          = "mistralai/Mistral-7B-Instruct-v0.3"
	defaultHuggingFaceEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
)

// HuggingFaceClient implements the Client interface for the hosted inference API
type HuggingFaceClient struct {
	baseURL        string
	model          string
	embeddingModel string
	transport      *jsonTransport
}

// NewHuggingFaceClient creates a new hosted inference client. The API key is optional.
func NewHuggingFaceClient(cfg ProviderConfig) *HuggingFaceClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultHuggingFaceURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = defaultHuggingFaceModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultHuggingFaceEmbeddingModel
	}

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	return &HuggingFaceClient{
		baseURL:        baseURL,
		model:          model,
		embeddingModel: embeddingModel,
		transport: &jsonTransport{
			provider:   ProviderHuggingFace,
			httpClient: &http.Client{},
			headers:    headers,
		},
	}
}

func (c *HuggingFaceClient) Name() Provider {
	return ProviderHuggingFace
}

func (c *HuggingFaceClient) Describe() Descriptor {
	return Descriptor{
		Provider:           ProviderHuggingFace,
		BaseURL:            c.baseURL,
		DefaultModel:       c.model,
		EmbeddingModel:     c.embeddingModel,
		Free:               true,
		SupportsEmbeddings: true,
		SupportsStreaming:  true,
	}
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	MaxNewTokens      int      `json:"max_new_tokens,omitempty"`
	Temperature       float64  `json:"temperature,omitempty"`
	TopP              float64  `json:"top_p,omitempty"`
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty"`
	Stop              []string `json:"stop,omitempty"`
	ReturnFullText    bool     `json:"return_full_text"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// hfPrompt folds the system prompt into the input text
func hfPrompt(req *Request) string {
	if req.System == "" {
		return req.Prompt
	}
	return req.System + "\n\n" + req.Prompt
}

func (c *HuggingFaceClient) modelURL(model string) string {
	return c.baseURL + "/models/" + model
}

func (c *HuggingFaceClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := hfRequest{
		Inputs: hfPrompt(req),
		Parameters: hfParameters{
			MaxNewTokens: req.MaxTokens,
			Temperature:  req.Temperature,
			TopP:         req.TopP,
			Stop:         req.Stop,
		},
	}
	if req.FrequencyPenalty > 0 {
		body.Parameters.RepetitionPenalty = 1 + req.FrequencyPenalty
	}

	resp, err := c.transport.do(ctx, http.MethodPost, c.modelURL(model), model, body)
	if err != nil {
		return nil, hfModelLoading(err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if ctx.Err() != nil {
			return nil, TransportError(ctx, ProviderHuggingFace, model, ctx.Err())
		}
		return nil, NewProviderError(ProviderHuggingFace, model, KindServer, fmt.Errorf("failed to decode response: %w", err))
	}

	text, err := parseHFGeneration(raw)
	if err != nil {
		return nil, NewProviderError(ProviderHuggingFace, model, KindServer, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, NewProviderError(ProviderHuggingFace, model, KindEmptyResponse, ErrEmptyResponse)
	}

	promptTokens := EstimateTokens(body.Inputs)
	completionTokens := EstimateTokens(text)
	return &Response{
		Content:  text,
		Provider: ProviderHuggingFace,
		Model:    model,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		FinishReason: "stop",
		Latency:      time.Since(start),
	}, nil
}

// parseHFGeneration accepts both the list and the single-object response shapes
func parseHFGeneration(raw json.RawMessage) (string, error) {
	var list []hfGeneration
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return "", nil
		}
		return list[0].GeneratedText, nil
	}

	var single hfGeneration
	if err := json.Unmarshal(raw, &single); err != nil {
		return "", fmt.Errorf("unexpected response shape: %w", err)
	}
	return single.GeneratedText, nil
}

// hfModelLoading marks 503 answers as a cold model rather than a server fault
func hfModelLoading(err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode == http.StatusServiceUnavailable {
		pe.Kind = KindModelLoading
	}
	return err
}

// CompleteStream runs a regular completion and emits it as a single chunk
func (c *HuggingFaceClient) CompleteStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 2)
	usage := resp.Usage
	ch <- StreamChunk{Delta: resp.Content}
	ch <- StreamChunk{Done: true, FinishReason: resp.FinishReason, Usage: &usage}
	close(ch)
	return ch, nil
}

func (c *HuggingFaceClient) Embed(ctx context.Context, text string) ([]float64, error) {
	payload := map[string]any{
		"inputs":  text,
		"options": hfOptions{WaitForModel: true},
	}

	url := c.baseURL + "/pipeline/feature-extraction/" + c.embeddingModel
	resp, err := c.transport.do(ctx, http.MethodPost, url, c.embeddingModel, payload)
	if err != nil {
		return nil, hfModelLoading(err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, NewProviderError(ProviderHuggingFace, c.embeddingModel, KindServer, fmt.Errorf("failed to decode response: %w", err))
	}

	vec, err := parseHFEmbedding(raw)
	if err != nil {
		return nil, NewProviderError(ProviderHuggingFace, c.embeddingModel, KindServer, err)
	}
	if len(vec) == 0 {
		return nil, NewProviderError(ProviderHuggingFace, c.embeddingModel, KindEmptyResponse, ErrEmptyResponse)
	}
	return vec, nil
}

// parseHFEmbedding accepts a flat vector or a batch of one
func parseHFEmbedding(raw json.RawMessage) ([]float64, error) {
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}

	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("unexpected embedding shape: %w", err)
	}
	if len(nested) == 0 {
		return nil, nil
	}
	return nested[0], nil
}

func (c *HuggingFaceClient) HealthCheck(ctx context.Context) error {
	return c.transport.doJSON(ctx, http.MethodGet, c.modelURL(c.model), c.model, nil, nil)
}

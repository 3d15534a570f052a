package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

const (
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

// OpenAIClient implements the Client interface on top of the OpenAI SDK
type OpenAIClient struct {
	client         openai.Client
	baseURL        string
	model          string
	embeddingModel string
}

// NewOpenAIClient creates a new OpenAI client. SDK-level retries are disabled;
// the dispatcher owns retry policy.
func NewOpenAIClient(cfg ProviderConfig) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.DefaultModel
	if model == "" {
		model = defaultOpenAIModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultOpenAIEmbeddingModel
	}

	return &OpenAIClient{
		client:         openai.NewClient(opts...),
		baseURL:        cfg.BaseURL,
		model:          model,
		embeddingModel: embeddingModel,
	}
}

func (c *OpenAIClient) Name() Provider {
	return ProviderOpenAI
}

func (c *OpenAIClient) Describe() Descriptor {
	return Descriptor{
		Provider:           ProviderOpenAI,
		BaseURL:            c.baseURL,
		DefaultModel:       c.model,
		EmbeddingModel:     c.embeddingModel,
		SupportsEmbeddings: true,
		SupportsStreaming:  true,
	}
}

func (c *OpenAIClient) params(req *Request) (openai.ChatCompletionNewParams, []option.RequestOption, string) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(req.FrequencyPenalty)
	}
	if req.PresencePenalty != 0 {
		params.PresencePenalty = openai.Float(req.PresencePenalty)
	}

	var opts []option.RequestOption
	if len(req.Stop) > 0 {
		opts = append(opts, option.WithJSONSet("stop", req.Stop))
	}
	return params, opts, model
}

func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	params, opts, model := c.params(req)

	resp, err := c.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return nil, c.wrapError(ctx, model, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, NewProviderError(ProviderOpenAI, model, KindEmptyResponse, ErrEmptyResponse)
	}

	if resp.Model != "" {
		model = resp.Model
	}
	return &Response{
		Content:  resp.Choices[0].Message.Content,
		Provider: ProviderOpenAI,
		Model:    model,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: string(resp.Choices[0].FinishReason),
		Latency:      time.Since(start),
		RequestID:    resp.ID,
	}, nil
}

// CompleteStream opens a streaming completion. The first event is read before
// returning so that connection and auth failures surface as an error here.
func (c *OpenAIClient) CompleteStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	params, opts, model := c.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params, opts...)
	if !stream.Next() {
		err := stream.Err()
		stream.Close()
		if err == nil {
			return nil, NewProviderError(ProviderOpenAI, model, KindEmptyResponse, ErrEmptyResponse)
		}
		return nil, c.wrapError(ctx, model, err)
	}

	ch := make(chan StreamChunk, 16)
	go c.processStream(ctx, stream, model, ch)
	return ch, nil
}

func (c *OpenAIClient) processStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], model string, ch chan<- StreamChunk) {
	defer close(ch)
	defer stream.Close()

	var (
		usage        *Usage
		finishReason string
	)
	for {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = &Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				if !sendChunk(ctx, ch, StreamChunk{Delta: choice.Delta.Content}) {
					return
				}
			}
		}

		if !stream.Next() {
			break
		}
	}

	if err := stream.Err(); err != nil {
		sendChunk(ctx, ch, StreamChunk{Err: c.wrapError(ctx, model, fmt.Errorf("openai streaming error: %w", err))})
		return
	}
	sendChunk(ctx, ch, StreamChunk{Done: true, FinishReason: finishReason, Usage: usage})
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, c.wrapError(ctx, c.embeddingModel, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, NewProviderError(ProviderOpenAI, c.embeddingModel, KindEmptyResponse, ErrEmptyResponse)
	}
	return resp.Data[0].Embedding, nil
}

func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return c.wrapError(ctx, "", err)
	}
	return nil
}

func (c *OpenAIClient) wrapError(ctx context.Context, model string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   ProviderOpenAI,
			Model:      model,
			Kind:       KindForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return TransportError(ctx, ProviderOpenAI, model, err)
}

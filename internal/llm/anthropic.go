package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-20241022"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicClient implements the Client interface on top of the Anthropic SDK
type AnthropicClient struct {
	client  anthropic.Client
	baseURL string
	model   string
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(cfg ProviderConfig) *AnthropicClient {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(cfg.APIKey),
		anthropicoption.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.DefaultModel
	if model == "" {
		model = defaultAnthropicModel
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(opts...),
		baseURL: cfg.BaseURL,
		model:   model,
	}
}

func (c *AnthropicClient) Name() Provider {
	return ProviderAnthropic
}

func (c *AnthropicClient) Describe() Descriptor {
	return Descriptor{
		Provider:          ProviderAnthropic,
		BaseURL:           c.baseURL,
		DefaultModel:      c.model,
		SupportsStreaming: true,
	}
}

func (c *AnthropicClient) params(req *Request) (anthropic.MessageNewParams, string) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	return params, model
}

func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	params, model := c.params(req)

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.wrapError(ctx, model, err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(content.String()) == "" {
		return nil, NewProviderError(ProviderAnthropic, model, KindEmptyResponse, ErrEmptyResponse)
	}

	if msg.Model != "" {
		model = string(msg.Model)
	}
	return &Response{
		Content:  content.String(),
		Provider: ProviderAnthropic,
		Model:    model,
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		FinishReason: string(msg.StopReason),
		Latency:      time.Since(start),
		RequestID:    msg.ID,
	}, nil
}

// CompleteStream opens a streaming message. The first event is read before
// returning so that connection and auth failures surface as an error here.
func (c *AnthropicClient) CompleteStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	params, model := c.params(req)

	stream := c.client.Messages.NewStreaming(ctx, params)
	if !stream.Next() {
		err := stream.Err()
		stream.Close()
		if err == nil {
			return nil, NewProviderError(ProviderAnthropic, model, KindEmptyResponse, ErrEmptyResponse)
		}
		return nil, c.wrapError(ctx, model, err)
	}

	ch := make(chan StreamChunk, 16)
	go c.processStream(ctx, stream, model, ch)
	return ch, nil
}

func (c *AnthropicClient) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], model string, ch chan<- StreamChunk) {
	defer close(ch)
	defer stream.Close()

	var (
		usage        Usage
		finishReason string
	)
	for {
		event := stream.Current()

		switch variant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.PromptTokens = int(variant.Message.Usage.InputTokens)
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
				if !sendChunk(ctx, ch, StreamChunk{Delta: d.Text}) {
					return
				}
			}
		case anthropic.MessageDeltaEvent:
			usage.CompletionTokens = int(variant.Usage.OutputTokens)
			finishReason = string(variant.Delta.StopReason)
		}

		if !stream.Next() {
			break
		}
	}

	if err := stream.Err(); err != nil {
		sendChunk(ctx, ch, StreamChunk{Err: c.wrapError(ctx, model, fmt.Errorf("anthropic streaming error: %w", err))})
		return
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	sendChunk(ctx, ch, StreamChunk{Done: true, FinishReason: finishReason, Usage: &usage})
}

// Embed is not offered by the Anthropic API
func (c *AnthropicClient) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, NewProviderError(ProviderAnthropic, "", KindUnsupported, ErrUnsupported)
}

func (c *AnthropicClient) HealthCheck(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return c.wrapError(ctx, "", err)
	}
	return nil
}

func (c *AnthropicClient) wrapError(ctx context.Context, model string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   ProviderAnthropic,
			Model:      model,
			Kind:       KindForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return TransportError(ctx, ProviderAnthropic, model, err)
}

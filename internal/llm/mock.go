package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const (
	defaultMockModel    = "mock-model"
	mockEmbeddingLength = 16
)

// MockClient is a deterministic in-process Client. It answers by echoing the
// prompt and can be scripted to fail, which makes it useful offline and in tests.
type MockClient struct {
	name  Provider
	model string

	mu        sync.Mutex
	responses []*Response
	errors    []error
	failAll   error
	healthErr error
	calls     int
	requests  []*Request
}

// NewMockClient creates a mock adapter that reports itself as provider name
func NewMockClient(name Provider, model string) *MockClient {
	if name == "" {
		name = ProviderMock
	}
	if model == "" {
		model = defaultMockModel
	}
	return &MockClient{name: name, model: model}
}

// WithResponses scripts the responses returned by successive calls
func (m *MockClient) WithResponses(responses ...*Response) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithErrors scripts the errors returned by successive calls; nil entries succeed
func (m *MockClient) WithErrors(errs ...error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = errs
	return m
}

// FailWith makes every call fail with err
func (m *MockClient) FailWith(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = err
	m.healthErr = err
	return m
}

// CallCount returns how many generation or embedding calls were made
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns the generation requests received so far
func (m *MockClient) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockClient) Name() Provider {
	return m.name
}

func (m *MockClient) Describe() Descriptor {
	return Descriptor{
		Provider:           m.name,
		DefaultModel:       m.model,
		EmbeddingModel:     m.model,
		Local:              true,
		Free:               true,
		SupportsEmbeddings: true,
		SupportsStreaming:  true,
	}
}

// next records a call and returns its scripted outcome
func (m *MockClient) next(req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if req != nil {
		m.requests = append(m.requests, req)
	}
	if m.failAll != nil {
		return nil, m.failAll
	}

	idx := m.calls - 1
	if idx < len(m.errors) && m.errors[idx] != nil {
		return nil, m.errors[idx]
	}
	if idx < len(m.responses) && m.responses[idx] != nil {
		resp := *m.responses[idx]
		return &resp, nil
	}
	return nil, nil
}

func (m *MockClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	if ctx.Err() != nil {
		return nil, TransportError(ctx, m.name, req.Model, ctx.Err())
	}

	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = m.model
	}
	if resp == nil {
		content := fmt.Sprintf("mock response to: %s", strings.TrimSpace(req.Prompt))
		promptTokens := EstimateTokens(req.System) + EstimateTokens(req.Prompt)
		completionTokens := EstimateTokens(content)
		resp = &Response{
			Content: content,
			Usage: Usage{
				PromptTokens:     promptTokens,
				CompletionTokens: completionTokens,
				TotalTokens:      promptTokens + completionTokens,
			},
			FinishReason: "stop",
		}
	}
	if resp.Provider == "" {
		resp.Provider = m.name
	}
	if resp.Model == "" {
		resp.Model = model
	}
	resp.Latency = time.Since(start)
	return resp, nil
}

// CompleteStream emits the completion word by word
func (m *MockClient) CompleteStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	words := strings.SplitAfter(resp.Content, " ")
	ch := make(chan StreamChunk, len(words)+1)
	go func() {
		defer close(ch)
		for _, w := range words {
			if !sendChunk(ctx, ch, StreamChunk{Delta: w}) {
				return
			}
		}
		usage := resp.Usage
		sendChunk(ctx, ch, StreamChunk{Done: true, FinishReason: resp.FinishReason, Usage: &usage})
	}()
	return ch, nil
}

// Embed returns a hash-derived unit-range vector; identical text yields identical vectors
func (m *MockClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if _, err := m.next(nil); err != nil {
		return nil, err
	}

	vec := make([]float64, mockEmbeddingLength)
	for i := range vec {
		h := fnv.New64a()
		fmt.Fprintf(h, "%d:%s", i, text)
		vec[i] = float64(h.Sum64()%2000)/1000 - 1
	}
	return vec, nil
}

func (m *MockClient) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

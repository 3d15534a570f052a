package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody limits how much of an error body is read into memory
const maxErrorBody = 1024

// jsonTransport is the shared plumbing of the HTTP-based adapters
type jsonTransport struct {
	provider   Provider
	httpClient *http.Client
	headers    map[string]string
}

// do sends a JSON request and returns the raw response when the status is 2xx.
// The caller owns the response body.
func (t *jsonTransport) do(ctx context.Context, method, url, model string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, NewProviderError(t.provider, model, KindInvalidRequest, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, NewProviderError(t.provider, model, KindInvalidRequest, fmt.Errorf("failed to create request: %w", err))
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, TransportError(ctx, t.provider, model, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, StatusError(t.provider, model, resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}

// doJSON sends a request and decodes a JSON response into out
func (t *jsonTransport) doJSON(ctx context.Context, method, url, model string, payload, out any) error {
	resp, err := t.do(ctx, method, url, model, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return TransportError(ctx, t.provider, model, ctx.Err())
		}
		return NewProviderError(t.provider, model, KindServer, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrNoProviders indicates the dispatcher has nothing to route to
	ErrNoProviders = errors.New("no providers configured")
	// ErrEmptyResponse indicates a provider answered without any content
	ErrEmptyResponse = errors.New("empty response from provider")
	// ErrTokensExceedCap indicates a request can never fit in the per-minute token cap
	ErrTokensExceedCap = errors.New("requested tokens exceed per-minute token cap")
	// ErrUnsupported indicates the provider lacks the requested capability
	ErrUnsupported = errors.New("operation not supported by provider")
)

// ErrorKind classifies provider failures
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindTimeout        ErrorKind = "timeout"
	KindRateLimit      ErrorKind = "rate_limit"
	KindServer         ErrorKind = "server"
	KindModelLoading   ErrorKind = "model_loading"
	KindAuth           ErrorKind = "auth"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindEmptyResponse  ErrorKind = "empty_response"
	KindUnsupported    ErrorKind = "unsupported"
	KindCanceled       ErrorKind = "canceled"
	KindUnknown        ErrorKind = "unknown"
)

// Retryable reports whether failures of this kind are worth retrying
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimit, KindServer, KindModelLoading, KindUnknown:
		return true
	}
	return false
}

// ProviderError is the normalized failure returned by every adapter
type ProviderError struct {
	Provider   Provider
	Model      string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Provider))
	if e.Model != "" {
		b.WriteString("/")
		b.WriteString(e.Model)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the dispatcher may try again
func (e *ProviderError) Retryable() bool {
	return e.Kind.Retryable()
}

// NewProviderError builds a ProviderError of the given kind
func NewProviderError(provider Provider, model string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, Kind: kind, Err: err}
}

// StatusError maps an HTTP status code and body excerpt to a ProviderError
func StatusError(provider Provider, model string, status int, body string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Model:      model,
		Kind:       KindForStatus(status),
		StatusCode: status,
		Err:        fmt.Errorf("%s returned status %d: %s", provider, status, strings.TrimSpace(body)),
	}
}

// KindForStatus maps HTTP status codes to error kinds
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindInvalidRequest
	}
	return KindUnknown
}

// TransportError wraps a failure that happened before a status code was received
func TransportError(ctx context.Context, provider Provider, model string, err error) *ProviderError {
	kind := KindNetwork
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = KindTimeout
		}
	}
	return &ProviderError{Provider: provider, Model: model, Kind: kind, Err: err}
}

// IsRetryable determines if an error warrants a retry
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNoProviders) || errors.Is(err, ErrTokensExceedCap) || errors.Is(err, ErrUnsupported) {
		return false
	}

	// Typed errors (ProviderError and aggregates) decide for themselves
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Network errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "eof") {
		return true
	}

	// 5xx server errors are retryable
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "internal error") {
		return true
	}

	// Rate limiting is retryable
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") {
		return true
	}

	// 4xx client errors are NOT retryable (except 429)
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "invalid") {
		return false
	}

	// Default: retry unknown errors
	return true
}

// KindOf extracts the error kind, or KindUnknown for untyped errors
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

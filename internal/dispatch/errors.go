package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
)

// Attempt is one failed provider call inside a dispatch
type Attempt struct {
	Provider llm.Provider  `json:"provider"`
	Model    string        `json:"model"`
	Err      error         `json:"-"`
	Latency  time.Duration `json:"latency"`
}

// AllProvidersFailedError is returned when every candidate in the chain failed
type AllProvidersFailedError struct {
	Attempts []Attempt
	Last     error
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("all providers failed: %v", e.Last)
	}
	tried := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		tried = append(tried, string(a.Provider)+"/"+a.Model)
	}
	return fmt.Sprintf("all providers failed (%s), last error: %v", strings.Join(tried, ", "), e.Last)
}

func (e *AllProvidersFailedError) Unwrap() error {
	return e.Last
}

// Retryable reports whether any attempt failed transiently
func (e *AllProvidersFailedError) Retryable() bool {
	for _, a := range e.Attempts {
		if llm.IsRetryable(a.Err) {
			return true
		}
	}
	return false
}

// isRetryable decides whether the outer retry loop runs the chain again
func isRetryable(err error) bool {
	var agg *AllProvidersFailedError
	if errors.As(err, &agg) {
		return agg.Retryable()
	}
	return llm.IsRetryable(err)
}

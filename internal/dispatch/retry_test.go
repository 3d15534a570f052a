package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

	assert.Equal(t, 2*time.Second, p.delay(1))
	assert.Equal(t, 4*time.Second, p.delay(2))
	assert.Equal(t, 8*time.Second, p.delay(3))
	assert.Equal(t, 30*time.Second, p.delay(10))
}

func TestRetryPolicy_DelayJitterBounds(t *testing.T) {
	p := DefaultRetryPolicy()

	for i := 0; i < 200; i++ {
		d := p.delay(1)
		assert.GreaterOrEqual(t, d, 1400*time.Millisecond)
		assert.LessOrEqual(t, d, 2600*time.Millisecond)

		capped := p.delay(8)
		assert.LessOrEqual(t, capped, 39*time.Second)
	}
}

func TestRetryPolicy_StopsOnPermanentError(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	calls := 0
	permanent := llm.StatusError(llm.ProviderOpenAI, "", 400, "bad request")

	err := p.do(context.Background(), zerolog.Nop(), func(ctx context.Context, attempt int) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ContextCancelledDuringBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	transient := llm.StatusError(llm.ProviderOllama, "", 503, "busy")

	calls := 0
	err := p.do(ctx, zerolog.Nop(), func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.do(context.Background(), zerolog.Nop(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestAllProvidersFailedError(t *testing.T) {
	transient := llm.StatusError(llm.ProviderOllama, "m", 503, "busy")
	permanent := llm.StatusError(llm.ProviderOpenAI, "gpt-4o", 401, "bad key")

	mixed := &AllProvidersFailedError{
		Attempts: []Attempt{
			{Provider: llm.ProviderOllama, Model: "m", Err: transient},
			{Provider: llm.ProviderOpenAI, Model: "gpt-4o", Err: permanent},
		},
		Last: permanent,
	}
	assert.True(t, mixed.Retryable())
	assert.True(t, isRetryable(mixed))
	assert.Contains(t, mixed.Error(), "ollama/m")
	assert.Contains(t, mixed.Error(), "openai/gpt-4o")
	assert.ErrorIs(t, mixed, permanent)

	allPermanent := &AllProvidersFailedError{
		Attempts: []Attempt{{Provider: llm.ProviderOpenAI, Err: permanent}},
		Last:     permanent,
	}
	assert.False(t, allPermanent.Retryable())

	canceled := &AllProvidersFailedError{Last: context.Canceled}
	assert.False(t, isRetryable(canceled))
	assert.True(t, errors.Is(canceled, context.Canceled))
}

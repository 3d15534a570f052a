package llm

import (
	"context"
	"sync"
	"time"
)

const (
	rateWindow          = time.Minute
	defaultPollInterval = time.Second
)

type windowEntry struct {
	at     time.Time
	tokens int
}

// WindowUsage is a point-in-time view of a limiter's rolling window
type WindowUsage struct {
	Requests          int `json:"requests"`
	Tokens            int `json:"tokens"`
	RequestsPerMinute int `json:"requests_per_minute"`
	TokensPerMinute   int `json:"tokens_per_minute"`
}

// RateLimiter enforces per-minute request and token caps over a rolling window.
// A zero cap disables that dimension.
type RateLimiter struct {
	mu      sync.Mutex
	rpm     int
	tpm     int
	entries []windowEntry

	pollInterval time.Duration
	now          func() time.Time
}

// NewRateLimiter creates a limiter with the given per-minute caps
func NewRateLimiter(requestsPerMinute, tokensPerMinute int) *RateLimiter {
	return &RateLimiter{
		rpm:          requestsPerMinute,
		tpm:          tokensPerMinute,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

// TryAcquire admits a request of the given size if both caps allow it
func (l *RateLimiter) TryAcquire(tokens int) bool {
	if tokens < 0 {
		tokens = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if l.rpm > 0 && len(l.entries) >= l.rpm {
		return false
	}
	if l.tpm > 0 && l.tokenSum()+tokens > l.tpm {
		return false
	}

	l.entries = append(l.entries, windowEntry{at: now, tokens: tokens})
	return true
}

// Acquire blocks until the request is admitted or ctx is done
func (l *RateLimiter) Acquire(ctx context.Context, tokens int) error {
	if l.tpm > 0 && tokens > l.tpm {
		return ErrTokensExceedCap
	}

	for {
		if l.TryAcquire(tokens) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// Usage reports the current window contents
func (l *RateLimiter) Usage() WindowUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return WindowUsage{
		Requests:          len(l.entries),
		Tokens:            l.tokenSum(),
		RequestsPerMinute: l.rpm,
		TokensPerMinute:   l.tpm,
	}
}

// prune drops entries older than the window. Caller holds mu.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(l.entries) && !l.entries[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		l.entries = append(l.entries[:0], l.entries[i:]...)
	}
}

func (l *RateLimiter) tokenSum() int {
	sum := 0
	for _, e := range l.entries {
		sum += e.tokens
	}
	return sum
}

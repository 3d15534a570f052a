package dispatch

import (
	"sync"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/QTest-hq/qroute/internal/selector"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultMaxRecords = 1000

// UsageRecord represents a single completed dispatch
type UsageRecord struct {
	ID               uuid.UUID     `json:"id"`
	Timestamp        time.Time     `json:"timestamp"`
	RequestID        string        `json:"request_id,omitempty"`
	Provider         llm.Provider  `json:"provider"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Cost             float64       `json:"cost"` // Estimated cost in USD
	Latency          time.Duration `json:"latency"`
	Fallback         bool          `json:"fallback"`
	Stream           bool          `json:"stream,omitempty"`
}

// ProviderStats aggregates outcomes for one provider
type ProviderStats struct {
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	Tokens         int64         `json:"tokens"`
	Cost           float64       `json:"cost_usd"`
	TotalLatency   time.Duration `json:"total_latency"`
	AverageLatency time.Duration `json:"average_latency"`
	Embeddings     int64         `json:"embeddings"`
}

// MetricsSnapshot is a point-in-time copy of the dispatch counters
type MetricsSnapshot struct {
	TotalRequests      int64                            `json:"total_requests"`
	SuccessfulRequests int64                            `json:"successful_requests"`
	FailedRequests     int64                            `json:"failed_requests"`
	FailedAttempts     int64                            `json:"failed_attempts"`
	FallbackRequests   int64                            `json:"fallback_requests"`
	EmbeddingRequests  int64                            `json:"embedding_requests"`
	TotalTokens        int64                            `json:"total_tokens"`
	TotalLatency       time.Duration                    `json:"total_latency"`
	AverageLatency     time.Duration                    `json:"average_latency"`
	TotalCost          float64                          `json:"total_cost_usd"`
	Providers          map[llm.Provider]ProviderStats   `json:"providers"`
	RateLimits         map[llm.Provider]llm.WindowUsage `json:"rate_limits,omitempty"`
	Selection          *selector.Stats                  `json:"selection,omitempty"`
	Recent             []UsageRecord                    `json:"recent,omitempty"`
}

// Metrics tracks dispatch outcomes. One instance per Client; all fields share one mutex.
type Metrics struct {
	mu sync.RWMutex

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	failedAttempts     int64
	fallbackRequests   int64
	embeddingRequests  int64
	totalTokens        int64
	totalLatency       time.Duration
	totalCost          float64

	providers map[llm.Provider]*ProviderStats

	// History (rolling window)
	records     []UsageRecord
	maxRecords  int
	recordIndex int
}

// NewMetrics creates metrics keeping the last maxRecords usage records
func NewMetrics(maxRecords int) *Metrics {
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	return &Metrics{
		providers:  make(map[llm.Provider]*ProviderStats),
		records:    make([]UsageRecord, maxRecords),
		maxRecords: maxRecords,
	}
}

func (m *Metrics) provider(p llm.Provider) *ProviderStats {
	s, ok := m.providers[p]
	if !ok {
		s = &ProviderStats{}
		m.providers[p] = s
	}
	return s
}

// RequestStarted counts one caller-visible request
func (m *Metrics) RequestStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRequests++
}

// RecordAttemptFailure counts one failed provider call
func (m *Metrics) RecordAttemptFailure(p llm.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedAttempts++
	m.provider(p).Failures++
}

// RecordFailure counts a request that failed after all candidates and retries
func (m *Metrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedRequests++
}

// RecordSuccess stores a usage record and updates the counters
func (m *Metrics) RecordSuccess(record UsageRecord) {
	record.ID = uuid.New()
	record.Timestamp = time.Now()
	if record.TotalTokens == 0 {
		record.TotalTokens = record.PromptTokens + record.CompletionTokens
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.successfulRequests++
	if record.Fallback {
		m.fallbackRequests++
	}
	m.totalTokens += int64(record.TotalTokens)
	m.totalLatency += record.Latency
	m.totalCost += record.Cost

	s := m.provider(record.Provider)
	s.Successes++
	s.Tokens += int64(record.TotalTokens)
	s.Cost += record.Cost
	s.TotalLatency += record.Latency

	// Store record
	m.records[m.recordIndex] = record
	m.recordIndex = (m.recordIndex + 1) % m.maxRecords

	log.Debug().
		Str("provider", string(record.Provider)).
		Str("model", record.Model).
		Int("total_tokens", record.TotalTokens).
		Float64("cost", record.Cost).
		Bool("fallback", record.Fallback).
		Msg("recorded LLM usage")
}

// RecordEmbedding counts one successful embedding call
func (m *Metrics) RecordEmbedding(p llm.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddingRequests++
	m.provider(p).Embeddings++
}

// Snapshot returns a copy of the counters and the most recent records
func (m *Metrics) Snapshot(recent int) MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalRequests:      m.totalRequests,
		SuccessfulRequests: m.successfulRequests,
		FailedRequests:     m.failedRequests,
		FailedAttempts:     m.failedAttempts,
		FallbackRequests:   m.fallbackRequests,
		EmbeddingRequests:  m.embeddingRequests,
		TotalTokens:        m.totalTokens,
		TotalLatency:       m.totalLatency,
		TotalCost:          m.totalCost,
		Providers:          make(map[llm.Provider]ProviderStats, len(m.providers)),
		Recent:             m.recentLocked(recent),
	}
	if m.successfulRequests > 0 {
		snap.AverageLatency = m.totalLatency / time.Duration(m.successfulRequests)
	}
	for p, s := range m.providers {
		c := *s
		if c.Successes > 0 {
			c.AverageLatency = c.TotalLatency / time.Duration(c.Successes)
		}
		snap.Providers[p] = c
	}
	return snap
}

// RecentRecords returns up to limit records, most recent first
func (m *Metrics) RecentRecords(limit int) []UsageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recentLocked(limit)
}

func (m *Metrics) recentLocked(limit int) []UsageRecord {
	if limit > m.maxRecords {
		limit = m.maxRecords
	}
	if limit <= 0 {
		return nil
	}

	result := make([]UsageRecord, 0, limit)

	// Start from most recent
	idx := (m.recordIndex - 1 + m.maxRecords) % m.maxRecords
	for i := 0; i < limit; i++ {
		if m.records[idx].ID != uuid.Nil {
			result = append(result, m.records[idx])
		}
		idx = (idx - 1 + m.maxRecords) % m.maxRecords
	}

	return result
}

package selector

import (
	"time"

	"github.com/QTest-hq/qroute/internal/classifier"
	"github.com/QTest-hq/qroute/internal/llm"
)

// HistoryEntry records one selection
type HistoryEntry struct {
	At            time.Time             `json:"at"`
	Category      classifier.Category   `json:"category"`
	Complexity    classifier.Complexity `json:"complexity"`
	ModelID       string                `json:"model_id"`
	Provider      llm.Provider          `json:"provider"`
	Tier          Tier                  `json:"tier"`
	Confidence    float64               `json:"confidence"`
	EstimatedCost float64               `json:"estimated_cost_usd"`
	Latency       time.Duration         `json:"latency"`
}

// Stats aggregates the selection history
type Stats struct {
	TotalSelections   int                  `json:"total_selections"`
	ByModel           map[string]int       `json:"by_model"`
	ByProvider        map[llm.Provider]int `json:"by_provider"`
	ByTier            map[Tier]int         `json:"by_tier"`
	FreeSelections    int                  `json:"free_selections"`
	AvgConfidence     float64              `json:"avg_confidence"`
	TotalEstimatedUSD float64              `json:"total_estimated_cost_usd"`
	AvgLatency        time.Duration        `json:"avg_latency"`
}

// history is a fixed-size ring; the oldest entry is overwritten first
type history struct {
	records []HistoryEntry
	next    int
	full    bool
}

func newHistory(limit int) *history {
	return &history{records: make([]HistoryEntry, limit)}
}

func (h *history) add(e HistoryEntry) {
	h.records[h.next] = e
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) len() int {
	if h.full {
		return len(h.records)
	}
	return h.next
}

// entries returns a copy, oldest first
func (h *history) entries() []HistoryEntry {
	n := h.len()
	out := make([]HistoryEntry, 0, n)
	start := 0
	if h.full {
		start = h.next
	}
	for i := 0; i < n; i++ {
		out = append(out, h.records[(start+i)%len(h.records)])
	}
	return out
}

func (h *history) stats() Stats {
	s := Stats{
		ByModel:    make(map[string]int),
		ByProvider: make(map[llm.Provider]int),
		ByTier:     make(map[Tier]int),
	}

	var confidence float64
	var latency time.Duration
	for _, e := range h.entries() {
		s.TotalSelections++
		s.ByModel[e.ModelID]++
		s.ByProvider[e.Provider]++
		s.ByTier[e.Tier]++
		if e.EstimatedCost == 0 {
			s.FreeSelections++
		}
		s.TotalEstimatedUSD += e.EstimatedCost
		confidence += e.Confidence
		latency += e.Latency
	}

	if s.TotalSelections > 0 {
		s.AvgConfidence = confidence / float64(s.TotalSelections)
		s.AvgLatency = latency / time.Duration(s.TotalSelections)
	}
	return s
}

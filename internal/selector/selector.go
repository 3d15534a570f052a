// Package selector picks a model from the catalog for a classified query and
// computes its fallback chain.
package selector

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/QTest-hq/qroute/internal/classifier"
	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/rs/zerolog/log"
)

const (
	maxFallbacks        = 3
	safeFallbackConf    = 0.5
	DefaultHistoryLimit = 1000
	DefaultMaxCost      = 0.10
)

// SafeFallbackModel is returned when the catalog offers nothing usable
var SafeFallbackModel = ModelDescriptor{
	ID:           "llama3.2:3b",
	Provider:     llm.ProviderOllama,
	Tier:         TierFast,
	MaxTokens:    8192,
	Capabilities: []string{CapGeneral, CapFast, CapCostEffective},
	Enabled:      true,
}

// preferredTier is the category's default tier
var preferredTier = map[classifier.Category]Tier{
	classifier.CategoryGeneralFactual: TierFast,
	classifier.CategoryCode:           TierBalanced,
	classifier.CategoryKnowledgeGraph: TierBalanced,
	classifier.CategoryAnalytical:     TierPowerful,
	classifier.CategoryComparative:    TierBalanced,
	classifier.CategoryProcedural:     TierFast,
	classifier.CategoryCreative:       TierBalanced,
	classifier.CategoryOpinion:        TierFast,
	classifier.CategoryUnknown:        TierFast,
}

// nextTierDown drives the tier-based part of the fallback chain
var nextTierDown = map[Tier]Tier{
	TierPowerful:    TierBalanced,
	TierSpecialized: TierBalanced,
	TierBalanced:    TierFast,
}

// ScoringWeights are the additive terms of the model score
type ScoringWeights struct {
	Free               float64 `json:"free"`
	LocalProvider      float64 `json:"local_provider"`
	FreeHostedProvider float64 `json:"free_hosted_provider"`
	CommercialProvider float64 `json:"commercial_provider"`
	CapabilityMatch    float64 `json:"capability_match"`
	CostEfficiency     float64 `json:"cost_efficiency"`
	CapacityFit        float64 `json:"capacity_fit"`
	CapacityPenalty    float64 `json:"capacity_penalty"`
	TagBonus           float64 `json:"tag_bonus"`
	PreferFree         float64 `json:"prefer_free"`
}

// DefaultWeights returns the standard scoring weights
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		Free:               0.30,
		LocalProvider:      0.20,
		FreeHostedProvider: 0.15,
		CommercialProvider: 0.10,
		CapabilityMatch:    0.20,
		CostEfficiency:     0.15,
		CapacityFit:        0.10,
		CapacityPenalty:    0.20,
		TagBonus:           0.05,
		PreferFree:         0.10,
	}
}

// Options configures a Selector
type Options struct {
	Weights         ScoringWeights
	MaxCostPerQuery float64 // USD; the cost-efficiency term reaches zero here
	PreferFree      bool
	HistoryLimit    int
}

// DefaultOptions returns the standard selector options
func DefaultOptions() Options {
	return Options{
		Weights:         DefaultWeights(),
		MaxCostPerQuery: DefaultMaxCost,
		HistoryLimit:    DefaultHistoryLimit,
	}
}

// Result is the outcome of one selection
type Result struct {
	ModelID         string        `json:"model_id"`
	Provider        llm.Provider  `json:"provider"`
	Tier            Tier          `json:"tier"`
	Confidence      float64       `json:"confidence"`
	Reasoning       string        `json:"reasoning"`
	Fallbacks       []string      `json:"fallbacks"`
	EstimatedTokens int           `json:"estimated_tokens"`
	EstimatedCost   float64       `json:"estimated_cost_usd"`
	Latency         time.Duration `json:"latency"`
}

// Selector scores catalog models. It is safe for concurrent use.
type Selector struct {
	catalog *Catalog
	opts    Options

	mu      sync.Mutex
	history *history
}

// New creates a selector over catalog
func New(catalog *Catalog, opts Options) *Selector {
	if catalog == nil {
		catalog, _ = NewCatalog(nil)
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Selector{
		catalog: catalog,
		opts:    opts,
		history: newHistory(opts.HistoryLimit),
	}
}

// Catalog returns the catalog the selector draws from
func (s *Selector) Catalog() *Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// SetCatalog swaps the catalog used by later selections. History is kept.
func (s *Selector) SetCatalog(catalog *Catalog) {
	if catalog == nil {
		catalog, _ = NewCatalog(nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = catalog
}

// Select chooses a model for c. estimatedTokens <= 0 uses the classification hint;
// forced, when non-nil, overrides the tier table.
func (s *Selector) Select(c classifier.Classification, estimatedTokens int, forced *Tier) Result {
	start := time.Now()
	if estimatedTokens <= 0 {
		estimatedTokens = c.Hints.EstimatedTokens
	}

	catalog := s.Catalog()

	var result Result
	enabled := catalog.Enabled()
	if len(enabled) == 0 || c.Category == classifier.CategoryUnknown {
		result = s.safeFallback(catalog, enabled, estimatedTokens, c)
	} else {
		tier := s.tierFor(c, forced)
		candidates := catalog.ByTier(tier)
		if len(candidates) == 0 {
			candidates = catalog.ByTier(TierBalanced)
		}
		if len(candidates) == 0 {
			candidates = enabled
		}

		best := candidates[0]
		bestScore, bestReasons := s.score(best, c, estimatedTokens)
		for _, m := range candidates[1:] {
			score, reasons := s.score(m, c, estimatedTokens)
			if score > bestScore {
				best, bestScore, bestReasons = m, score, reasons
			}
		}

		result = Result{
			ModelID:         best.ID,
			Provider:        best.Provider,
			Tier:            best.Tier,
			Confidence:      bestScore,
			Reasoning:       fmt.Sprintf("%s/%s query routed to %s tier: %s", c.Category, c.Complexity, tier, strings.Join(bestReasons, ", ")),
			Fallbacks:       s.fallbacks(catalog, best),
			EstimatedTokens: estimatedTokens,
			EstimatedCost:   best.EstimateCost(estimatedTokens),
		}
	}
	result.Latency = time.Since(start)

	s.record(c, result)

	log.Debug().
		Str("model", result.ModelID).
		Str("provider", string(result.Provider)).
		Str("tier", string(result.Tier)).
		Float64("confidence", result.Confidence).
		Strs("fallbacks", result.Fallbacks).
		Msg("selected model")

	return result
}

// tierFor applies the tier table: complex queries always go to the powerful tier
func (s *Selector) tierFor(c classifier.Classification, forced *Tier) Tier {
	if forced != nil && forced.Valid() {
		return *forced
	}
	if c.Complexity == classifier.ComplexityComplex {
		return TierPowerful
	}
	if t, ok := preferredTier[c.Category]; ok {
		return t
	}
	return TierBalanced
}

// requiredCapability maps a category to the capability tag that earns the match bonus
func requiredCapability(category classifier.Category) string {
	switch category {
	case classifier.CategoryCode:
		return CapCode
	case classifier.CategoryAnalytical, classifier.CategoryComparative:
		return CapAnalysis
	}
	return CapGeneral
}

func (s *Selector) score(m ModelDescriptor, c classifier.Classification, tokens int) (float64, []string) {
	w := s.opts.Weights
	var (
		score   float64
		reasons []string
	)

	if m.IsFree() {
		score += w.Free
		reasons = append(reasons, "free")
		if s.opts.PreferFree {
			score += w.PreferFree
		}
	}

	switch {
	case m.Provider.IsLocal():
		score += w.LocalProvider
		reasons = append(reasons, "local provider")
	case m.Provider.IsFree():
		score += w.FreeHostedProvider
		reasons = append(reasons, "free hosted provider")
	default:
		score += w.CommercialProvider
	}

	if capability := requiredCapability(c.Category); m.HasCapability(capability) {
		score += w.CapabilityMatch
		reasons = append(reasons, capability+" capability")
	}

	score += w.CostEfficiency * s.costEfficiency(m, tokens)

	if m.MaxTokens <= 0 || tokens <= m.MaxTokens {
		score += w.CapacityFit
	} else {
		score -= w.CapacityPenalty
		reasons = append(reasons, "insufficient context")
	}

	for _, tag := range []string{CapFast, CapCostEffective, CapVeryCostEffective} {
		if m.HasCapability(tag) {
			score += w.TagBonus
		}
	}

	return clamp(score, 0, 1), reasons
}

func (s *Selector) costEfficiency(m ModelDescriptor, tokens int) float64 {
	if m.IsFree() {
		return 1
	}
	if s.opts.MaxCostPerQuery <= 0 {
		return 0
	}
	return clamp(1-m.EstimateCost(tokens)/s.opts.MaxCostPerQuery, 0, 1)
}

// fallbacks merges the model's own list, the next tier down and every fast model
func (s *Selector) fallbacks(catalog *Catalog, selected ModelDescriptor) []string {
	out := make([]string, 0, maxFallbacks)
	seen := map[string]bool{selected.ID: true}

	add := func(id string) {
		if len(out) >= maxFallbacks || seen[id] {
			return
		}
		m, ok := catalog.Get(id)
		if !ok || !m.Enabled {
			return
		}
		seen[id] = true
		out = append(out, id)
	}

	for _, id := range selected.Fallbacks {
		add(id)
	}
	if lower, ok := nextTierDown[selected.Tier]; ok {
		for _, m := range catalog.ByTier(lower) {
			add(m.ID)
		}
	}
	for _, m := range catalog.Enabled() {
		if m.HasCapability(CapFast) {
			add(m.ID)
		}
	}
	return out
}

// safeFallback picks the cheapest enabled general-purpose model, or the built-in default
func (s *Selector) safeFallback(catalog *Catalog, enabled []ModelDescriptor, tokens int, c classifier.Classification) Result {
	model := SafeFallbackModel
	found := false
	for _, m := range enabled {
		if !m.HasCapability(CapGeneral) {
			continue
		}
		if !found || m.CostPer1K < model.CostPer1K {
			model, found = m, true
		}
	}

	reason := "no usable models in catalog, using built-in default"
	fallbacks := []string{}
	if found {
		reason = "fallback to lowest-cost general model"
		fallbacks = s.fallbacks(catalog, model)
	}
	if c.Category == classifier.CategoryUnknown {
		reason = "unclassified query: " + reason
	}

	return Result{
		ModelID:         model.ID,
		Provider:        model.Provider,
		Tier:            model.Tier,
		Confidence:      safeFallbackConf,
		Reasoning:       reason,
		Fallbacks:       fallbacks,
		EstimatedTokens: tokens,
		EstimatedCost:   model.EstimateCost(tokens),
	}
}

func (s *Selector) record(c classifier.Classification, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.add(HistoryEntry{
		At:            time.Now(),
		Category:      c.Category,
		Complexity:    c.Complexity,
		ModelID:       r.ModelID,
		Provider:      r.Provider,
		Tier:          r.Tier,
		Confidence:    r.Confidence,
		EstimatedCost: r.EstimatedCost,
		Latency:       r.Latency,
	})
}

// History returns selections oldest first
func (s *Selector) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.entries()
}

// Stats aggregates the bounded selection history
func (s *Selector) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.stats()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

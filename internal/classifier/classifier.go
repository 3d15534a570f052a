// Package classifier assigns a category, complexity and routing hints to a
// natural-language query using static pattern tables.
package classifier

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// Category is the kind of question being asked
type Category string

const (
	CategoryGeneralFactual Category = "general_factual"
	CategoryCode           Category = "code"
	CategoryKnowledgeGraph Category = "knowledge_graph"
	CategoryAnalytical     Category = "analytical"
	CategoryComparative    Category = "comparative"
	CategoryProcedural     Category = "procedural"
	CategoryCreative       Category = "creative"
	CategoryOpinion        Category = "opinion"
	CategoryUnknown        Category = "unknown"
)

// Complexity is a coarse estimate of how much reasoning a query needs
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Execution strategies, priorities and cache strategies used in RoutingHints
const (
	StrategyDirect     = "direct"
	StrategySequential = "sequential"
	StrategyParallel   = "parallel"

	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"

	CacheAggressive = "aggressive"
	CacheStandard   = "standard"
	CacheNone       = "none"
)

const (
	// noMatchConfidence is reported when no category pattern matched
	noMatchConfidence = 0.3
	// DefaultCacheSize bounds the classification memo
	DefaultCacheSize = 512
)

// RoutingHints carries downstream execution preferences
type RoutingHints struct {
	ExecutionStrategy string `json:"execution_strategy"`
	Priority          string `json:"priority"`
	EstimatedTokens   int    `json:"estimated_tokens"`
	CacheStrategy     string `json:"cache_strategy"`
}

// Classification is the result of classifying one query
type Classification struct {
	Query           string       `json:"query"`
	Category        Category     `json:"category"`
	Confidence      float64      `json:"confidence"`
	Complexity      Complexity   `json:"complexity"`
	MatchedPatterns []string     `json:"matched_patterns"`
	SuggestedAgents []string     `json:"suggested_agents"`
	Hints           RoutingHints `json:"routing_hints"`
}

func (c Classification) clone() Classification {
	c.MatchedPatterns = append([]string(nil), c.MatchedPatterns...)
	c.SuggestedAgents = append([]string(nil), c.SuggestedAgents...)
	return c
}

// Classifier classifies queries. It is safe for concurrent use.
type Classifier struct {
	cache *lru.Cache[string, Classification]
}

// New creates a classifier memoizing up to cacheSize results; cacheSize <= 0 disables memoization
func New(cacheSize int) *Classifier {
	c := &Classifier{}
	if cacheSize > 0 {
		cache, err := lru.New[string, Classification](cacheSize)
		if err != nil {
			log.Warn().Err(err).Msg("classification cache disabled")
		} else {
			c.cache = cache
		}
	}
	return c
}

// Classify never fails; empty input yields CategoryUnknown
func (c *Classifier) Classify(query string) Classification {
	key := normalize(query)
	if key == "" {
		return Classification{
			Query:           query,
			Category:        CategoryUnknown,
			Confidence:      0,
			Complexity:      ComplexitySimple,
			MatchedPatterns: []string{},
			SuggestedAgents: append([]string(nil), preferredAgents[CategoryUnknown]...),
			Hints:           hintsFor(CategoryUnknown, ComplexitySimple),
		}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			out := cached.clone()
			out.Query = query
			return out
		}
	}

	result := classify(key)
	result.Query = query

	if c.cache != nil {
		c.cache.Add(key, result.clone())
	}

	log.Debug().
		Str("category", string(result.Category)).
		Str("complexity", string(result.Complexity)).
		Float64("confidence", result.Confidence).
		Msg("classified query")

	return result
}

func classify(text string) Classification {
	words := len(strings.Fields(text))

	best := CategoryGeneralFactual
	bestScore := 0.0
	var bestMatches []string
	for _, cp := range categoryTable {
		count := 0
		var matched []string
		for _, pat := range cp.patterns {
			n := len(pat.re.FindAllStringIndex(text, -1))
			if n > 0 {
				count += n
				matched = append(matched, string(cp.category)+":"+pat.name)
			}
		}
		if count == 0 {
			continue
		}

		score := clamp(float64(count)/(float64(words)*0.5), 0, 1)
		if score > bestScore {
			best, bestScore, bestMatches = cp.category, score, matched
		}
	}

	confidence := bestScore
	if bestScore == 0 {
		confidence = noMatchConfidence
		bestMatches = []string{}
	}

	complexity := assessComplexity(text, words)
	return Classification{
		Category:        best,
		Confidence:      confidence,
		Complexity:      complexity,
		MatchedPatterns: bestMatches,
		SuggestedAgents: append([]string(nil), preferredAgents[best]...),
		Hints:           hintsFor(best, complexity),
	}
}

// assessComplexity scores indicator matches plus a word-count bias; ties favor the simpler bucket
func assessComplexity(text string, words int) Complexity {
	scores := map[Complexity]int{}
	for level, patterns := range complexityTable {
		for _, pat := range patterns {
			scores[level] += len(pat.re.FindAllStringIndex(text, -1))
		}
	}

	switch {
	case words > 20:
		scores[ComplexityComplex]++
	case words > 10:
		scores[ComplexityModerate]++
	default:
		scores[ComplexitySimple]++
	}

	result := ComplexitySimple
	for _, level := range []Complexity{ComplexityModerate, ComplexityComplex} {
		if scores[level] > scores[result] {
			result = level
		}
	}
	return result
}

func hintsFor(category Category, complexity Complexity) RoutingHints {
	h, ok := baseHints[category]
	if !ok {
		h = baseHints[CategoryUnknown]
	}
	h.EstimatedTokens *= tokenMultiplier[complexity]
	if complexity == ComplexityComplex {
		h.Priority = PriorityHigh
		h.ExecutionStrategy = StrategyParallel
	}
	return h
}

func normalize(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
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

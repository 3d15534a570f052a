package selector

import (
	"fmt"

	"github.com/QTest-hq/qroute/internal/config"
	"github.com/QTest-hq/qroute/internal/llm"
)

// Tier groups models by cost and capability
type Tier string

const (
	TierFast        Tier = "fast"
	TierBalanced    Tier = "balanced"
	TierPowerful    Tier = "powerful"
	TierSpecialized Tier = "specialized"
)

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	switch t {
	case TierFast, TierBalanced, TierPowerful, TierSpecialized:
		return true
	}
	return false
}

// Capability tags used by scoring
const (
	CapGeneral           = "general"
	CapCode              = "code"
	CapAnalysis          = "analysis"
	CapConversation      = "conversation"
	CapFast              = "fast"
	CapCostEffective     = "cost-effective"
	CapVeryCostEffective = "very-cost-effective"
)

// ModelDescriptor describes one routable model
type ModelDescriptor struct {
	ID           string       `json:"id"`
	Provider     llm.Provider `json:"provider"`
	Tier         Tier         `json:"tier"`
	CostPer1K    float64      `json:"cost_per_1k_tokens"`
	MaxTokens    int          `json:"max_tokens"`
	Capabilities []string     `json:"capabilities"`
	Fallbacks    []string     `json:"fallbacks,omitempty"`
	Enabled      bool         `json:"enabled"`
}

// HasCapability reports whether the model carries the given tag
func (m ModelDescriptor) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// IsFree reports whether the model has zero per-token cost
func (m ModelDescriptor) IsFree() bool {
	return m.CostPer1K == 0
}

// EstimateCost returns the USD cost of the given number of tokens
func (m ModelDescriptor) EstimateCost(tokens int) float64 {
	if m.CostPer1K == 0 || tokens <= 0 {
		return 0
	}
	return m.CostPer1K * float64(tokens) / 1000
}

// Catalog is an ordered, read-only set of model descriptors
type Catalog struct {
	models []ModelDescriptor
	index  map[string]int
}

// NewCatalog validates and indexes models; order is preserved for tie-breaking
func NewCatalog(models []ModelDescriptor) (*Catalog, error) {
	c := &Catalog{
		models: make([]ModelDescriptor, 0, len(models)),
		index:  make(map[string]int, len(models)),
	}
	for _, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog: model with empty id")
		}
		if _, dup := c.index[m.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate model %q", m.ID)
		}
		if !m.Provider.Valid() {
			return nil, fmt.Errorf("catalog: model %q has unknown provider %q", m.ID, m.Provider)
		}
		if !m.Tier.Valid() {
			return nil, fmt.Errorf("catalog: model %q has unknown tier %q", m.ID, m.Tier)
		}
		if m.CostPer1K < 0 {
			return nil, fmt.Errorf("catalog: model %q has negative cost", m.ID)
		}
		m.Capabilities = append([]string(nil), m.Capabilities...)
		m.Fallbacks = append([]string(nil), m.Fallbacks...)
		c.index[m.ID] = len(c.models)
		c.models = append(c.models, m)
	}
	return c, nil
}

// Len returns the number of models, enabled or not
func (c *Catalog) Len() int {
	return len(c.models)
}

// Get looks up a model by id
func (c *Catalog) Get(id string) (ModelDescriptor, bool) {
	i, ok := c.index[id]
	if !ok {
		return ModelDescriptor{}, false
	}
	return c.models[i], true
}

// Models returns every model in catalog order
func (c *Catalog) Models() []ModelDescriptor {
	return append([]ModelDescriptor(nil), c.models...)
}

// Enabled returns enabled models in catalog order
func (c *Catalog) Enabled() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(c.models))
	for _, m := range c.models {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// ByTier returns enabled models of tier t in catalog order
func (c *Catalog) ByTier(t Tier) []ModelDescriptor {
	var out []ModelDescriptor
	for _, m := range c.models {
		if m.Enabled && m.Tier == t {
			out = append(out, m)
		}
	}
	return out
}

// RestrictTo returns a copy in which models of unlisted providers are disabled
func (c *Catalog) RestrictTo(providers []llm.Provider) *Catalog {
	allowed := make(map[llm.Provider]bool, len(providers))
	for _, p := range providers {
		allowed[p] = true
	}

	out := &Catalog{
		models: make([]ModelDescriptor, len(c.models)),
		index:  make(map[string]int, len(c.index)),
	}
	for i, m := range c.models {
		if !allowed[m.Provider] {
			m.Enabled = false
		}
		out.models[i] = m
		out.index[m.ID] = i
	}
	return out
}

// CatalogFromConfig converts a parsed catalog file
func CatalogFromConfig(file *config.CatalogFile) (*Catalog, error) {
	models := make([]ModelDescriptor, 0, len(file.Models))
	for _, m := range file.Models {
		enabled := true
		if m.Enabled != nil {
			enabled = *m.Enabled
		}
		models = append(models, ModelDescriptor{
			ID:           m.ID,
			Provider:     llm.Provider(m.Provider),
			Tier:         Tier(m.Tier),
			CostPer1K:    m.CostPer1K,
			MaxTokens:    m.MaxTokens,
			Capabilities: m.Capabilities,
			Fallbacks:    m.Fallbacks,
			Enabled:      enabled,
		})
	}
	return NewCatalog(models)
}

// DefaultModels is the built-in model table
func DefaultModels() []ModelDescriptor {
	return []ModelDescriptor{
		// fast
		{ID: "llama3.2:3b", Provider: llm.ProviderOllama, Tier: TierFast, CostPer1K: 0, MaxTokens: 8192,
			Capabilities: []string{CapGeneral, CapFast, CapCostEffective}, Fallbacks: []string{"mistralai/Mistral-7B-Instruct-v0.3"}, Enabled: true},
		{ID: "mistralai/Mistral-7B-Instruct-v0.3", Provider: llm.ProviderHuggingFace, Tier: TierFast, CostPer1K: 0, MaxTokens: 4096,
			Capabilities: []string{CapGeneral, CapFast, CapVeryCostEffective}, Enabled: true},
		{ID: "gpt-4o-mini", Provider: llm.ProviderOpenAI, Tier: TierFast, CostPer1K: 0.00015 + 0.0006, MaxTokens: 16384,
			Capabilities: []string{CapGeneral, CapCode, CapFast, CapCostEffective}, Fallbacks: []string{"claude-3-5-haiku-20241022"}, Enabled: true},
		{ID: "claude-3-5-haiku-20241022", Provider: llm.ProviderAnthropic, Tier: TierFast, CostPer1K: 0.0008 + 0.004, MaxTokens: 8192,
			Capabilities: []string{CapGeneral, CapConversation, CapFast}, Fallbacks: []string{"gpt-4o-mini"}, Enabled: true},
		{ID: "mock-model", Provider: llm.ProviderMock, Tier: TierFast, CostPer1K: 0, MaxTokens: 4096,
			Capabilities: []string{CapGeneral}, Enabled: true},

		// balanced
		{ID: "qwen2.5-coder:7b", Provider: llm.ProviderOllama, Tier: TierBalanced, CostPer1K: 0, MaxTokens: 32768,
			Capabilities: []string{CapCode, CapGeneral, CapCostEffective}, Fallbacks: []string{"deepseek-coder-v2:16b", "gpt-4o-mini"}, Enabled: true},
		{ID: "llama3.1:8b", Provider: llm.ProviderOllama, Tier: TierBalanced, CostPer1K: 0, MaxTokens: 8192,
			Capabilities: []string{CapGeneral, CapAnalysis, CapConversation, CapCostEffective}, Fallbacks: []string{"llama3.2:3b"}, Enabled: true},
		{ID: "meta-llama/Llama-3.1-8B-Instruct", Provider: llm.ProviderHuggingFace, Tier: TierBalanced, CostPer1K: 0, MaxTokens: 8192,
			Capabilities: []string{CapGeneral, CapAnalysis, CapVeryCostEffective}, Enabled: true},

		// powerful
		{ID: "gpt-4o", Provider: llm.ProviderOpenAI, Tier: TierPowerful, CostPer1K: 0.0025 + 0.01, MaxTokens: 128000,
			Capabilities: []string{CapGeneral, CapCode, CapAnalysis}, Fallbacks: []string{"claude-3-5-sonnet-20241022"}, Enabled: true},
		{ID: "claude-3-5-sonnet-20241022", Provider: llm.ProviderAnthropic, Tier: TierPowerful, CostPer1K: 0.003 + 0.015, MaxTokens: 200000,
			Capabilities: []string{CapGeneral, CapCode, CapAnalysis, CapConversation}, Fallbacks: []string{"gpt-4o"}, Enabled: true},

		// specialized
		{ID: "deepseek-coder-v2:16b", Provider: llm.ProviderOllama, Tier: TierSpecialized, CostPer1K: 0, MaxTokens: 16384,
			Capabilities: []string{CapCode, CapCostEffective}, Fallbacks: []string{"qwen2.5-coder:7b"}, Enabled: true},
	}
}

// DefaultCatalog builds the catalog from DefaultModels
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultModels())
	if err != nil {
		panic(err)
	}
	return c
}

// ToCatalogFile converts models into the file representation
func ToCatalogFile(models []ModelDescriptor) *config.CatalogFile {
	file := &config.CatalogFile{Version: "1.0", Models: make([]config.CatalogModel, 0, len(models))}
	for _, m := range models {
		enabled := m.Enabled
		file.Models = append(file.Models, config.CatalogModel{
			ID:           m.ID,
			Provider:     string(m.Provider),
			Tier:         string(m.Tier),
			CostPer1K:    m.CostPer1K,
			MaxTokens:    m.MaxTokens,
			Capabilities: m.Capabilities,
			Fallbacks:    m.Fallbacks,
			Enabled:      &enabled,
		})
	}
	return file
}

// LoadCatalog merges the catalog file at path over the built-in models; an empty path yields the defaults
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	file, err := config.LoadCatalogFile(path)
	if err != nil {
		return nil, err
	}

	base := ToCatalogFile(DefaultModels())
	base.Merge(file)
	return CatalogFromConfig(base)
}

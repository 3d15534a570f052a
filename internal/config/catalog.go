package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogFile represents a model catalog YAML file
type CatalogFile struct {
	Version string `yaml:"version"`

	// When false, entries are merged over the built-in catalog by id
	ReplaceDefaults bool `yaml:"replace_defaults,omitempty"`

	Models []CatalogModel `yaml:"models"`
}

// CatalogModel is one model entry in a catalog file
type CatalogModel struct {
	ID       string `yaml:"id"`
	Provider string `yaml:"provider"`
	Tier     string `yaml:"tier"` // fast, balanced, powerful, specialized

	// Blended USD cost per 1K tokens; 0 marks a free model
	CostPer1K float64 `yaml:"cost_per_1k"`
	MaxTokens int     `yaml:"max_tokens"`

	Capabilities []string `yaml:"capabilities,omitempty"`
	Fallbacks    []string `yaml:"fallbacks,omitempty"`

	// Defaults to true when omitted
	Enabled *bool `yaml:"enabled,omitempty"`
}

// LoadCatalogFile reads and validates a catalog file
func LoadCatalogFile(path string) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	cfg := &CatalogFile{Version: "1.0"}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	for i, m := range cfg.Models {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog %s: model %d has no id", path, i)
		}
		if m.Provider == "" {
			return nil, fmt.Errorf("catalog %s: model %q has no provider", path, m.ID)
		}
		if m.Tier == "" {
			return nil, fmt.Errorf("catalog %s: model %q has no tier", path, m.ID)
		}
	}

	return cfg, nil
}

// SaveCatalogFile writes the catalog to path
func SaveCatalogFile(path string, cfg *CatalogFile) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Merge overlays other onto c: entries with a known id replace it, new ids are appended
func (c *CatalogFile) Merge(other *CatalogFile) {
	if other == nil {
		return
	}

	if other.ReplaceDefaults {
		c.Models = append([]CatalogModel(nil), other.Models...)
		return
	}

	index := make(map[string]int, len(c.Models))
	for i, m := range c.Models {
		index[m.ID] = i
	}
	for _, m := range other.Models {
		if i, ok := index[m.ID]; ok {
			c.Models[i] = m
			continue
		}
		index[m.ID] = len(c.Models)
		c.Models = append(c.Models, m)
	}
}

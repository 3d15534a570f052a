package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")

	content := `version: "1.0"
models:
  - id: "llama3.2:3b"
    provider: ollama
    tier: fast
    cost_per_1k: 0
    max_tokens: 8192
    capabilities: [general, fast]
  - id: gpt-4o
    provider: openai
    tier: powerful
    cost_per_1k: 0.0125
    max_tokens: 128000
    capabilities: [general, code, analysis]
    fallbacks: ["llama3.2:3b"]
    enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile() error = %v", err)
	}

	if len(cfg.Models) != 2 {
		t.Fatalf("len(Models) = %d, want 2", len(cfg.Models))
	}
	if cfg.Models[0].Enabled != nil {
		t.Error("Models[0].Enabled should be nil when omitted")
	}
	if cfg.Models[1].Enabled == nil || *cfg.Models[1].Enabled {
		t.Error("Models[1].Enabled should be false")
	}
	if cfg.Models[1].CostPer1K != 0.0125 {
		t.Errorf("Models[1].CostPer1K = %f, want 0.0125", cfg.Models[1].CostPer1K)
	}
	if len(cfg.Models[1].Fallbacks) != 1 || cfg.Models[1].Fallbacks[0] != "llama3.2:3b" {
		t.Errorf("Models[1].Fallbacks = %v", cfg.Models[1].Fallbacks)
	}
}

func TestLoadCatalogFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing_id", "models:\n  - provider: ollama\n    tier: fast\n"},
		{"missing_provider", "models:\n  - id: m\n    tier: fast\n"},
		{"missing_tier", "models:\n  - id: m\n    provider: ollama\n"},
		{"bad_yaml", "models: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadCatalogFile(path); err == nil {
				t.Error("LoadCatalogFile() should fail")
			}
		})
	}
}

func TestLoadCatalogFile_Missing(t *testing.T) {
	if _, err := LoadCatalogFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadCatalogFile() should fail for a missing file")
	}
}

func TestSaveCatalogFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	cfg := &CatalogFile{
		Version: "1.0",
		Models: []CatalogModel{
			{ID: "m", Provider: "mock", Tier: "fast", MaxTokens: 100},
		},
	}

	if err := SaveCatalogFile(path, cfg); err != nil {
		t.Fatalf("SaveCatalogFile() error = %v", err)
	}

	loaded, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile() error = %v", err)
	}
	if len(loaded.Models) != 1 || loaded.Models[0].ID != "m" {
		t.Errorf("loaded.Models = %+v", loaded.Models)
	}
}

func TestCatalogFile_Merge(t *testing.T) {
	base := &CatalogFile{Models: []CatalogModel{
		{ID: "a", Provider: "ollama", Tier: "fast"},
		{ID: "b", Provider: "ollama", Tier: "balanced"},
	}}

	base.Merge(&CatalogFile{Models: []CatalogModel{
		{ID: "b", Provider: "openai", Tier: "powerful"},
		{ID: "c", Provider: "mock", Tier: "fast"},
	}})

	if len(base.Models) != 3 {
		t.Fatalf("len(Models) = %d, want 3", len(base.Models))
	}
	if base.Models[1].Provider != "openai" {
		t.Errorf("Models[1].Provider = %s, want openai", base.Models[1].Provider)
	}
	if base.Models[2].ID != "c" {
		t.Errorf("Models[2].ID = %s, want c", base.Models[2].ID)
	}

	base.Merge(&CatalogFile{ReplaceDefaults: true, Models: []CatalogModel{{ID: "z", Provider: "mock", Tier: "fast"}}})
	if len(base.Models) != 1 || base.Models[0].ID != "z" {
		t.Errorf("Models after replace = %+v", base.Models)
	}

	base.Merge(nil)
	if len(base.Models) != 1 {
		t.Error("Merge(nil) should be a no-op")
	}
}

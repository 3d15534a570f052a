package config

import (
	"os"
	"testing"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
)

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"PORT", "ENV", "LOG_LEVEL",
		"LLM_PREFER_FREE_MODELS", "LLM_MAX_COST_PER_QUERY", "LLM_EMBEDDING_PROVIDER",
		"LLM_CATALOG_PATH", "LLM_RETRY_ATTEMPTS", "LLM_RETRY_BASE_DELAY",
		"OTEL_TRACING_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO",
		"API_RATE_LIMIT_RPS", "API_RATE_LIMIT_BURST",
	}
	for _, d := range defaultProviders {
		for _, suffix := range []string{"_ENABLED", "_API_KEY", "_BASE_URL", "_MODEL", "_EMBEDDING_MODEL", "_TIMEOUT", "_RPM", "_TPM"} {
			envVars = append(envVars, d.prefix+suffix)
		}
	}
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %s, want development", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if !cfg.LLM.PreferFreeModels {
		t.Error("LLM.PreferFreeModels should default to true")
	}
	if cfg.LLM.EmbeddingProvider != llm.ProviderOllama {
		t.Errorf("LLM.EmbeddingProvider = %s, want ollama", cfg.LLM.EmbeddingProvider)
	}
	if cfg.LLM.RetryAttempts != 3 {
		t.Errorf("LLM.RetryAttempts = %d, want 3", cfg.LLM.RetryAttempts)
	}
	if cfg.LLM.RetryBaseDelay != 2*time.Second {
		t.Errorf("LLM.RetryBaseDelay = %v, want 2s", cfg.LLM.RetryBaseDelay)
	}
	if cfg.Telemetry.TracingEnabled {
		t.Error("Telemetry.TracingEnabled should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestLoad_ProviderDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Providers) != len(llm.AllProviders) {
		t.Fatalf("len(Providers) = %d, want %d", len(cfg.Providers), len(llm.AllProviders))
	}
	for i, p := range llm.AllProviders {
		if cfg.Providers[i].Provider != p {
			t.Errorf("Providers[%d] = %s, want %s", i, cfg.Providers[i].Provider, p)
		}
	}

	enabled := cfg.EnabledProviders()
	if len(enabled) != 1 || enabled[0].Provider != llm.ProviderOllama {
		t.Errorf("EnabledProviders() = %+v, want only ollama", enabled)
	}

	ollama, ok := cfg.Provider(llm.ProviderOllama)
	if !ok {
		t.Fatal("Provider(ollama) not found")
	}
	if ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("ollama.BaseURL = %s", ollama.BaseURL)
	}
	if ollama.Timeout != 5*time.Minute {
		t.Errorf("ollama.Timeout = %v, want 5m", ollama.Timeout)
	}

	openai, _ := cfg.Provider(llm.ProviderOpenAI)
	if openai.Timeout != 60*time.Second {
		t.Errorf("openai.Timeout = %v, want 60s", openai.Timeout)
	}
	hf, _ := cfg.Provider(llm.ProviderHuggingFace)
	if hf.Timeout <= openai.Timeout {
		t.Errorf("huggingface timeout %v should exceed commercial timeout %v", hf.Timeout, openai.Timeout)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("LLM_PREFER_FREE_MODELS", "false")
	t.Setenv("LLM_MAX_COST_PER_QUERY", "0.5")
	t.Setenv("LLM_RETRY_BASE_DELAY", "250ms")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")
	t.Setenv("OLLAMA_RPM", "30")
	t.Setenv("OLLAMA_TPM", "40000")
	t.Setenv("HUGGINGFACE_ENABLED", "true")
	t.Setenv("OTEL_TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() should be true")
	}
	if cfg.LLM.PreferFreeModels {
		t.Error("LLM.PreferFreeModels should be false")
	}
	if cfg.LLM.MaxCostPerQuery != 0.5 {
		t.Errorf("LLM.MaxCostPerQuery = %f, want 0.5", cfg.LLM.MaxCostPerQuery)
	}
	if cfg.LLM.RetryBaseDelay != 250*time.Millisecond {
		t.Errorf("LLM.RetryBaseDelay = %v, want 250ms", cfg.LLM.RetryBaseDelay)
	}
	if !cfg.Telemetry.TracingEnabled {
		t.Error("Telemetry.TracingEnabled should be true")
	}

	anthropic, _ := cfg.Provider(llm.ProviderAnthropic)
	if !anthropic.Enabled || anthropic.APIKey != "sk-ant-test" {
		t.Errorf("anthropic = %+v, want enabled with key", anthropic)
	}

	ollama, _ := cfg.Provider(llm.ProviderOllama)
	if ollama.BaseURL != "http://ollama:11434" {
		t.Errorf("ollama.BaseURL = %s", ollama.BaseURL)
	}
	if ollama.RequestsPerMinute != 30 || ollama.TokensPerMinute != 40000 {
		t.Errorf("ollama caps = %d/%d, want 30/40000", ollama.RequestsPerMinute, ollama.TokensPerMinute)
	}

	if len(cfg.EnabledProviders()) != 3 {
		t.Errorf("len(EnabledProviders()) = %d, want 3", len(cfg.EnabledProviders()))
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port: 8080,
			LLM: LLMConfig{
				MaxCostPerQuery:   0.1,
				RetryAttempts:     3,
				EmbeddingProvider: llm.ProviderOllama,
			},
			Telemetry: TelemetryConfig{SamplingRatio: 1},
			Providers: []llm.ProviderConfig{
				{Provider: llm.ProviderOllama, Enabled: true, BaseURL: "http://localhost:11434"},
				{Provider: llm.ProviderOpenAI, Enabled: true, APIKey: "sk-test"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad_port", func(c *Config) { c.Port = 0 }, true},
		{"negative_cost", func(c *Config) { c.LLM.MaxCostPerQuery = -1 }, true},
		{"zero_attempts", func(c *Config) { c.LLM.RetryAttempts = 0 }, true},
		{"unknown_embedder", func(c *Config) { c.LLM.EmbeddingProvider = "cohere" }, true},
		{"bad_sampling", func(c *Config) { c.Telemetry.SamplingRatio = 2 }, true},
		{"missing_openai_key", func(c *Config) { c.Providers[1].APIKey = "" }, true},
		{"disabled_without_key", func(c *Config) { c.Providers[1].APIKey = ""; c.Providers[1].Enabled = false }, false},
		{"ollama_without_url", func(c *Config) { c.Providers[0].BaseURL = "" }, true},
		{"negative_rpm", func(c *Config) { c.Providers[0].RequestsPerMinute = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue string
		want         string
	}{
		{"returns env value", "TEST_VAR_1", "custom", "default", "custom"},
		{"returns default when empty", "TEST_VAR_2", "", "default", "default"},
		{"returns default when unset", "TEST_VAR_UNSET", "", "fallback", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%s, %s) = %s, want %s", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue int
		want         int
	}{
		{"returns parsed int", "TEST_INT_1", "42", 0, 42},
		{"returns default when empty", "TEST_INT_2", "", 100, 100},
		{"returns default when invalid", "TEST_INT_3", "not-a-number", 50, 50},
		{"handles negative numbers", "TEST_INT_4", "-10", 0, -10},
		{"handles zero", "TEST_INT_5", "0", 99, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt(%s, %d) = %d, want %d", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_BAD_BOOL", "maybe")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_DURATION", "1m30s")
	t.Setenv("TEST_BAD_DURATION", "soon")

	if !getEnvBool("TEST_BOOL", false) {
		t.Error("getEnvBool(TEST_BOOL) = false, want true")
	}
	if getEnvBool("TEST_BAD_BOOL", false) {
		t.Error("getEnvBool should fall back on invalid input")
	}
	if got := getEnvFloat("TEST_FLOAT", 0); got != 0.25 {
		t.Errorf("getEnvFloat = %f, want 0.25", got)
	}
	if got := getEnvDuration("TEST_DURATION", 0); got != 90*time.Second {
		t.Errorf("getEnvDuration = %v, want 1m30s", got)
	}
	if got := getEnvDuration("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration = %v, want fallback 1s", got)
	}
}

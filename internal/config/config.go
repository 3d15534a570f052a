package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port     int
	Env      string
	LogLevel string

	// LLM
	LLM LLMConfig

	// Providers in registration order
	Providers []llm.ProviderConfig

	// Telemetry
	Telemetry TelemetryConfig

	// Inbound API throttle
	API APIConfig
}

// LLMConfig holds routing and dispatch settings
type LLMConfig struct {
	PreferFreeModels  bool
	MaxCostPerQuery   float64
	EmbeddingProvider llm.Provider

	// Optional YAML model catalog merged over the built-in one
	CatalogPath string

	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	TracingEnabled bool
	OTLPEndpoint   string
	SamplingRatio  float64
}

// APIConfig holds the inbound request throttle
type APIConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

type providerDefaults struct {
	provider       llm.Provider
	prefix         string
	enabled        bool
	baseURL        string
	model          string
	embeddingModel string
	timeout        time.Duration
}

// defaultProviders is the registration order: free providers first
var defaultProviders = []providerDefaults{
	{llm.ProviderOllama, "OLLAMA", true, "http://localhost:11434", "llama3.2:3b", "nomic-embed-text", 5 * time.Minute},
	{llm.ProviderHuggingFace, "HUGGINGFACE", false, "https://api-inference.huggingface.co", "mistralai/Mistral-7B-Instruct-v0.3", "sentence-transformers/all-MiniLM-L6-v2", 2 * time.Minute},
	{llm.ProviderOpenAI, "OPENAI", false, "", "gpt-4o-mini", "text-embedding-3-small", 60 * time.Second},
	{llm.ProviderAnthropic, "ANTHROPIC", false, "", "claude-3-5-haiku-20241022", "", 60 * time.Second},
	{llm.ProviderMock, "MOCK", false, "", "mock-model", "", 10 * time.Second},
}

// Load loads configuration from the environment, reading .env first when present
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvInt("PORT", 8080),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LLM: LLMConfig{
			PreferFreeModels:  getEnvBool("LLM_PREFER_FREE_MODELS", true),
			MaxCostPerQuery:   getEnvFloat("LLM_MAX_COST_PER_QUERY", 0.10),
			EmbeddingProvider: llm.Provider(getEnv("LLM_EMBEDDING_PROVIDER", string(llm.ProviderOllama))),
			CatalogPath:       getEnv("LLM_CATALOG_PATH", ""),
			RetryAttempts:     getEnvInt("LLM_RETRY_ATTEMPTS", 3),
			RetryBaseDelay:    getEnvDuration("LLM_RETRY_BASE_DELAY", 2*time.Second),
		},

		Telemetry: TelemetryConfig{
			TracingEnabled: getEnvBool("OTEL_TRACING_ENABLED", false),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SamplingRatio:  getEnvFloat("OTEL_SAMPLING_RATIO", 1.0),
		},

		API: APIConfig{
			RateLimitRPS:   getEnvFloat("API_RATE_LIMIT_RPS", 10),
			RateLimitBurst: getEnvInt("API_RATE_LIMIT_BURST", 20),
		},
	}

	for _, d := range defaultProviders {
		apiKey := getEnv(d.prefix+"_API_KEY", "")
		// commercial providers switch on when a key is present
		enabled := d.enabled || (apiKey != "" && !d.provider.IsLocal())
		cfg.Providers = append(cfg.Providers, llm.ProviderConfig{
			Provider:          d.provider,
			Enabled:           getEnvBool(d.prefix+"_ENABLED", enabled),
			BaseURL:           getEnv(d.prefix+"_BASE_URL", d.baseURL),
			APIKey:            apiKey,
			DefaultModel:      getEnv(d.prefix+"_MODEL", d.model),
			EmbeddingModel:    getEnv(d.prefix+"_EMBEDDING_MODEL", d.embeddingModel),
			Timeout:           getEnvDuration(d.prefix+"_TIMEOUT", d.timeout),
			RequestsPerMinute: getEnvInt(d.prefix+"_RPM", 0),
			TokensPerMinute:   getEnvInt(d.prefix+"_TPM", 0),
		})
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.LLM.MaxCostPerQuery < 0 {
		return fmt.Errorf("LLM_MAX_COST_PER_QUERY must not be negative")
	}
	if c.LLM.RetryAttempts < 1 {
		return fmt.Errorf("LLM_RETRY_ATTEMPTS must be at least 1")
	}
	if c.LLM.EmbeddingProvider != "" && !c.LLM.EmbeddingProvider.Valid() {
		return fmt.Errorf("unknown LLM_EMBEDDING_PROVIDER %q", c.LLM.EmbeddingProvider)
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be between 0 and 1")
	}

	for _, p := range c.Providers {
		prefix := strings.ToUpper(string(p.Provider))
		if p.RequestsPerMinute < 0 || p.TokensPerMinute < 0 {
			return fmt.Errorf("%s_RPM and %s_TPM must not be negative", prefix, prefix)
		}
		if !p.Enabled {
			continue
		}
		if (p.Provider == llm.ProviderOpenAI || p.Provider == llm.ProviderAnthropic) && p.APIKey == "" {
			return fmt.Errorf("%s_API_KEY required when using %s provider", prefix, p.Provider)
		}
		if p.Provider == llm.ProviderOllama && p.BaseURL == "" {
			return fmt.Errorf("OLLAMA_BASE_URL required when using ollama provider")
		}
	}

	return nil
}

// EnabledProviders returns the enabled provider configs in registration order
func (c *Config) EnabledProviders() []llm.ProviderConfig {
	var out []llm.ProviderConfig
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Provider returns the config for p
func (c *Config) Provider(p llm.Provider) (llm.ProviderConfig, bool) {
	for _, pc := range c.Providers {
		if pc.Provider == p {
			return pc, true
		}
	}
	return llm.ProviderConfig{}, false
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

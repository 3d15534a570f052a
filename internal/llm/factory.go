package llm

import "fmt"

// NewClient builds the adapter for cfg.Provider
func NewClient(cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: API key required")
		}
		return NewOpenAIClient(cfg), nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: API key required")
		}
		return NewAnthropicClient(cfg), nil
	case ProviderOllama:
		return NewOllamaClient(cfg), nil
	case ProviderHuggingFace:
		return NewHuggingFaceClient(cfg), nil
	case ProviderMock:
		return NewMockClient(ProviderMock, cfg.DefaultModel), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

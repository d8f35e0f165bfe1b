// Package providers constructs the configured llm.Provider implementation.
package providers

import (
	"fmt"
	"net/http"

	"ragorchestrator/internal/config"
	"ragorchestrator/internal/llm"
	"ragorchestrator/internal/llm/anthropic"
	"ragorchestrator/internal/llm/google"
	openaillm "ragorchestrator/internal/llm/openai"
)

// Build constructs the llm.Provider selected by cfg.Provider (PROVIDER_BACKEND).
func Build(cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openaillm.New(cfg.OpenAI, httpClient), nil
	case config.ProviderAnthropic:
		return anthropic.New(cfg.Anthropic, httpClient), nil
	case config.ProviderGoogle:
		return google.New(cfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported provider backend: %s", cfg.Provider)
	}
}

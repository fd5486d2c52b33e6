package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider names accepted by NewModel.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderEcho      = "echo"
)

// ProviderConfig selects and configures a model backend.
type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	// APIKeyEnv names the environment variable holding the API key. When
	// empty the provider's conventional variable is used.
	APIKeyEnv string
}

// NewModel builds a langchaingo model for cfg. The echo provider has no
// model and returns nil.
func NewModel(ctx context.Context, cfg ProviderConfig) (llms.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderEcho:
		return nil, nil
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(apiKey(cfg, "OPENAI_API_KEY"))}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		return openai.New(opts...)
	case ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(apiKey(cfg, "ANTHROPIC_API_KEY"))}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		return anthropic.New(opts...)
	case ProviderGoogle, "gemini":
		opts := []googleai.Option{googleai.WithAPIKey(apiKey(cfg, "GOOGLE_API_KEY"))}
		if cfg.Model != "" {
			opts = append(opts, googleai.WithDefaultModel(cfg.Model))
		}
		return googleai.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func apiKey(cfg ProviderConfig, fallback string) string {
	name := cfg.APIKeyEnv
	if name == "" {
		name = fallback
	}
	return os.Getenv(name)
}

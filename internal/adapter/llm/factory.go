package llm

import (
	"context"
	"log"
	"os"
	"strings"
)

const (
	// EnvAssistantMode is the environment variable name for mode selection.
	EnvAssistantMode = "ASSISTANT_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// Provider names accepted by NewLLMClient.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderMock       = "mock"
)

// Options selects and configures a backend.
type Options struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	// Referer is sent to OpenRouter as HTTP-Referer.
	Referer string
}

// NewLLMClient creates a client based on opts and the ASSISTANT_MODE
// environment variable. If ASSISTANT_MODE=MOCK, returns a MockClient.
// A provider without an API key yields a client that always fails with
// ErrNotConfigured, so callers take their fallback path.
func NewLLMClient(opts Options) LLMClient {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if os.Getenv(EnvAssistantMode) == ModeMock || provider == ProviderMock {
		log.Println("ASSISTANT_MODE=MOCK detected, using mock completion client")
		return NewMockClient()
	}
	if provider == "" {
		provider = ProviderOpenRouter
	}
	if opts.APIKey == "" {
		log.Printf("WARN: no API key configured for provider %s, assistant replies will use fallbacks", provider)
		return unconfiguredClient{provider: provider}
	}

	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(opts.APIKey, opts.BaseURL, opts.Model)
	case ProviderOpenAI:
		return NewOpenAIClient(provider, opts.APIKey, opts.BaseURL, opts.Model, nil)
	default:
		if provider != ProviderOpenRouter {
			log.Printf("WARN: unknown provider %q, using openrouter", provider)
			provider = ProviderOpenRouter
		}
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		model := opts.Model
		if model == "" {
			model = DefaultOpenRouterModel
		}
		referer := opts.Referer
		if referer == "" {
			referer = "http://localhost:3000"
		}
		return NewOpenAIClient(provider, opts.APIKey, baseURL, model, map[string]string{
			"HTTP-Referer": referer,
			"X-Title":      AppTitle,
		})
	}
}

type unconfiguredClient struct {
	provider string
}

func (c unconfiguredClient) Provider() string { return c.provider }

func (c unconfiguredClient) CreateChatCompletion(context.Context, *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	return nil, ErrNotConfigured
}

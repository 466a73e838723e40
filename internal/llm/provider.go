// Package llm holds the chat-completion providers used for AI entity extraction.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeouts for LLM operations.
const (
	TimeoutLLMCall = 60 * time.Second
)

// Domain errors for the LLM package.
var (
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrEmptyResponse        = errors.New("provider returned no content")
)

// Provider is the interface all LLM providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is one chat-completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the backend for a JSON object response when it supports it.
	JSONMode bool
}

// Message is a chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response is a chat-completion response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	// Name is "openai" (any OpenAI-compatible endpoint, including Tinfoil) or "ollama".
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "openai", "tinfoil", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: %s requires an API key", ErrProviderNotAvailable, providerLabel(cfg.Name))
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Timeout), nil
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderNotAvailable, cfg.Name)
	}
}

// ProviderUsesAPIKey reports whether the named provider requires an API key.
func ProviderUsesAPIKey(name string) bool {
	return name != "ollama"
}

func providerLabel(name string) string {
	if name == "" {
		return "openai"
	}
	return name
}

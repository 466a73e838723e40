package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	masqotel "github.com/dativo-io/masquerade/internal/otel"
)

var tracer = masqotel.Tracer("github.com/dativo-io/masquerade/internal/llm")

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client  *openai.Client
	timeout time.Duration
}

// NewOpenAIProvider creates a provider. baseURL may be empty (api.openai.com),
// a scheme+host ("http://localhost:8080") or a full API root ending in /v1.
func NewOpenAIProvider(apiKey, baseURL string, timeout time.Duration) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		baseURL = strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL += "/v1"
		}
		config.BaseURL = baseURL
	}
	return newOpenAIProviderWithClient(openai.NewClientWithConfig(config), timeout)
}

func newOpenAIProviderWithClient(client *openai.Client, timeout time.Duration) *OpenAIProvider {
	if timeout <= 0 {
		timeout = TimeoutLLMCall
	}
	return &OpenAIProvider{client: client, timeout: timeout}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a chat completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(masqotel.LLMRequestAttributes("openai", req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	recordRequest(ctx, p.Name(), req.Model, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api call: %w", ErrEmptyResponse)
	}

	span.SetAttributes(masqotel.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	span.SetAttributes(masqotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)))

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}, nil
}

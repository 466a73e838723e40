package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	masqotel "github.com/dativo-io/masquerade/internal/otel"
)

// OllamaProvider implements Provider for local Ollama models.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewOllamaProvider creates an Ollama provider. An empty baseURL means
// http://localhost:11434.
func NewOllamaProvider(baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = TimeoutLLMCall
	}
	return &OllamaProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// Name returns the provider identifier.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Generate sends a chat request to the Ollama instance.
func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(
			masqotel.GenAISystem.String("ollama"),
			masqotel.GenAIRequestModel.String(req.Model),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := make([]ollamaMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = ollamaMessage{Role: msg.Role, Content: msg.Content}
	}
	apiReq := ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Options:  &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}
	if req.JSONMode {
		apiReq.Format = "json"
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshalling ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		recordRequest(ctx, p.Name(), req.Model, time.Since(start), err)
		span.RecordError(err)
		return nil, fmt.Errorf("ollama api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("ollama api call: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
		recordRequest(ctx, p.Name(), req.Model, time.Since(start), err)
		return nil, err
	}

	var apiResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		recordRequest(ctx, p.Name(), req.Model, time.Since(start), err)
		return nil, fmt.Errorf("decoding ollama response: %w", err)
	}
	recordRequest(ctx, p.Name(), req.Model, time.Since(start), nil)

	span.SetAttributes(masqotel.LLMUsageAttributes(apiResp.PromptEvalCount, apiResp.EvalCount)...)

	return &Response{
		Content:      apiResp.Message.Content,
		FinishReason: "stop",
		InputTokens:  apiResp.PromptEvalCount,
		OutputTokens: apiResp.EvalCount,
		Model:        req.Model,
	}, nil
}

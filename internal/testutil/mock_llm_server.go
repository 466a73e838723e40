package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletion is the minimal chat completions response for tests.
type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// MockLLMServer is an OpenAI-compatible chat completions endpoint.
type MockLLMServer struct {
	*httptest.Server
	requests atomic.Int64
}

// Requests returns how many completions were served.
func (s *MockLLMServer) Requests() int { return int(s.requests.Load()) }

// NewOpenAICompatibleServer starts a server answering POST /v1/chat/completions
// with content as the assistant message ("{}" when empty). Caller must Close
// it or register t.Cleanup(server.Close).
func NewOpenAICompatibleServer(content string) *MockLLMServer {
	if content == "" {
		content = "{}"
	}
	resp := ChatCompletion{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  "gpt-4o-mini",
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
	s := &MockLLMServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	return s
}

// NewFailingServer starts a server that answers every request with status.
func NewFailingServer(status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(status), status)
	}))
}

// Package testutil provides shared test helpers, mocks, and utilities for masquerade tests.
package testutil

import (
	"context"
	"sync"

	"github.com/dativo-io/masquerade/internal/llm"
)

// MockProvider implements llm.Provider for tests without live API calls.
// When Content is empty, Generate returns an empty JSON object.
// Set Err to simulate LLM errors.
type MockProvider struct {
	ProviderName string
	Content      string
	Err          error

	mu       sync.Mutex
	requests []*llm.Request
}

// Name returns the provider identifier (implements llm.Provider).
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Generate records the request and returns the canned response or error.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Content
	if content == "" {
		content = "{}"
	}
	return &llm.Response{
		Content:      content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// Requests returns the requests received so far.
func (m *MockProvider) Requests() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

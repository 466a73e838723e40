package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Name: "openai", APIKey: "k", BaseURL: "https://inference.tinfoil.sh"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = NewProvider(ProviderConfig{Name: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	_, err = NewProvider(ProviderConfig{Name: "tinfoil"})
	assert.ErrorIs(t, err, ErrProviderNotAvailable)

	_, err = NewProvider(ProviderConfig{Name: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrProviderNotAvailable)
}

func TestProviderUsesAPIKey(t *testing.T) {
	assert.True(t, ProviderUsesAPIKey("openai"))
	assert.False(t, ProviderUsesAPIKey("ollama"))
}

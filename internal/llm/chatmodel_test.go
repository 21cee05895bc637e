package llm

import (
	"context"
	"testing"

	"ruwave_bot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatModelProviders(t *testing.T) {
	cfg := config.LLMConfig{
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		BaseURL:     "http://127.0.0.1:1",
		MaxTokens:   500,
		Temperature: 0.7,
	}

	for _, provider := range []string{"", "openai", "OpenAI", "deepseek", "ollama"} {
		t.Run(provider, func(t *testing.T) {
			cfg.Provider = provider
			m, err := NewChatModel(context.Background(), cfg)
			require.NoError(t, err)
			assert.NotNil(t, m)
		})
	}
}

func TestNewChatModelUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), config.LLMConfig{Provider: "gemini", APIKey: "k"})
	assert.ErrorContains(t, err, "unknown LLM provider")
}

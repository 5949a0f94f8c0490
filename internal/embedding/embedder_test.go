package embedding

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanquery/internal/config"
	"loanquery/internal/errs"
)

func TestNewTFIDF(t *testing.T) {
	e, err := New(config.EmbedderConfig{Type: "tfidf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tfidf", e.Name())
	assert.Equal(t, 1, Concurrency(config.EmbedderConfig{Type: "tfidf"}))
}

func TestNewOpenAI(t *testing.T) {
	t.Setenv("EMBED_FACTORY_KEY", "k")
	cfg := config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "EMBED_FACTORY_KEY", Model: "nomic", Concurrency: 3}}
	e, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai:nomic", e.Name())
	assert.Equal(t, 3, Concurrency(cfg))
}

func TestNewUnknown(t *testing.T) {
	_, err := New(config.EmbedderConfig{Type: "bert"}, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfig))
}

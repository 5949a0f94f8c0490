package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanquery/internal/config"
	"loanquery/internal/errs"
)

func testConfig(f fixture) *config.AppConfig {
	return &config.AppConfig{
		Dataset:     config.DatasetConfig{Path: f.csv},
		Index:       config.IndexConfig{Dir: f.dir},
		Embedder:    config.EmbedderConfig{Type: "tfidf"},
		VectorStore: config.VectorStoreConfig{Type: "disk"},
		Retriever:   config.RetrieverConfig{TopK: 3},
		Summarizer:  config.SummarizerConfig{Type: "frequency", MaxSentences: 2},
		Generator:   config.GeneratorConfig{APIKey: "from-env"},
	}
}

func TestFromConfigBuildsWorkingService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, err := FromConfig(testConfig(f), nil)
	require.NoError(t, err)
	assert.True(t, svc.HasDefaultAPIKey())

	_, err = svc.BuildIndex(ctx, BuildOptions{})
	require.NoError(t, err)

	reopened, err := FromConfig(testConfig(f), nil)
	require.NoError(t, err)
	require.NoError(t, reopened.Open(ctx))
	res, err := reopened.Retrieve(ctx, "self-employed graduate", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, res)
}

func TestFromConfigRejectsUnknownComponents(t *testing.T) {
	f := newFixture(t)

	cfg := testConfig(f)
	cfg.Summarizer.Type = "lexrank"
	_, err := FromConfig(cfg, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfig))

	cfg = testConfig(f)
	cfg.VectorStore.Type = "faiss"
	_, err = FromConfig(cfg, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfig))

	cfg = testConfig(f)
	cfg.Embedder.Type = "bert"
	_, err = FromConfig(cfg, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfig))
}

package vectorstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanquery/internal/config"
	"loanquery/internal/errs"
	"loanquery/internal/vectorstore/disk"
	"loanquery/internal/vectorstore/qdrant"
)

func TestNew(t *testing.T) {
	cfg := &config.AppConfig{Index: config.IndexConfig{Dir: t.TempDir()}, VectorStore: config.VectorStoreConfig{Type: "disk"}}
	s, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &disk.Storage{}, s)

	cfg.VectorStore = config.VectorStoreConfig{Type: "qdrant", Qdrant: &config.QdrantConfig{URL: "http://localhost:6333"}}
	s, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &qdrant.Storage{}, s)

	cfg.VectorStore = config.VectorStoreConfig{Type: "qdrant"}
	_, err = New(cfg, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfig))

	cfg.VectorStore = config.VectorStoreConfig{Type: "faiss"}
	_, err = New(cfg, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfig))
}

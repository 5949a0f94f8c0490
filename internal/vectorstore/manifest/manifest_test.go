package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanquery/internal/domain"
	"loanquery/internal/errs"
)

func TestWriteRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	in := domain.Manifest{
		Embedder:      "tfidf",
		Dimension:     12,
		Count:         3,
		DatasetPath:   "Training Dataset.csv",
		DatasetDigest: "abc",
		BuiltAt:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		EmbedderState: `{"terms":["a"]}`,
	}
	require.NoError(t, Write(dir, in))

	out, err := Read(dir)
	require.NoError(t, err)
	in.Version = Version
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadMissing(t *testing.T) {
	_, err := Read(t.TempDir())
	assert.True(t, errors.Is(err, errs.ErrIndexMissing))
}

func TestReadWrongVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("version: 99\n"), 0o644))
	_, err := Read(dir)
	assert.True(t, errors.Is(err, errs.ErrIndexCorrupt))
}

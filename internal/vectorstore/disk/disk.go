// Package disk keeps the index in a local directory: a flat vector file, a
// SQLite table of position-aligned metadata and a manifest.
package disk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"loanquery/internal/domain"
	"loanquery/internal/errs"
	"loanquery/internal/vectorstore/manifest"
)

const (
	IndexFile    = "loan_data.index"
	MetadataFile = "metadata.db"
)

// Storage stages vectors in memory until Commit writes them out, and serves
// searches from the last committed or opened index.
type Storage struct {
	dir string
	log *slog.Logger

	mu        sync.RWMutex
	dimension int
	staged    []domain.Chunk
	vectors   [][]float32

	index    *flatIndex
	chunks   []domain.Chunk
	manifest domain.Manifest
}

func NewStorage(dir string, log *slog.Logger) *Storage {
	if log == nil {
		log = slog.Default()
	}
	return &Storage{dir: dir, log: log.With("component", "disk-store", "dir", dir)}
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errs.ErrIndexWrite.Wrapf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.staged = nil
	s.vectors = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errs.ErrIndexWrite.Wrapf("%d chunks but %d vectors", len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range vectors {
		if len(v) != s.dimension {
			return errs.ErrIndexWrite.Wrapf("vector %d has dimension %d, want %d", i, len(v), s.dimension)
		}
	}
	s.staged = append(s.staged, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Commit writes the staged index into a sibling temp directory and swaps it
// into place. The previous index stays intact if anything fails.
func (s *Storage) Commit(ctx context.Context, m domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := newFlatIndex(s.dimension, s.vectors)
	if err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	m.Version = manifest.Version
	m.Dimension = s.dimension
	m.Count = len(s.staged)
	if m.BuiltAt.IsZero() {
		m.BuiltAt = time.Now().UTC()
	}

	parent := filepath.Dir(s.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	tmp, err := os.MkdirTemp(parent, filepath.Base(s.dir)+".tmp-*")
	if err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	if err := s.writeAll(ctx, tmp, idx, m); err != nil {
		_ = os.RemoveAll(tmp)
		return errs.ErrIndexWrite.Wrap(err)
	}
	if err := swap(tmp, s.dir); err != nil {
		_ = os.RemoveAll(tmp)
		return errs.ErrIndexWrite.Wrap(err)
	}

	s.index = idx
	s.chunks = s.staged
	s.manifest = m
	s.staged, s.vectors = nil, nil
	s.log.Info("index committed", "count", m.Count, "dimension", m.Dimension)
	return nil
}

func (s *Storage) writeAll(ctx context.Context, dir string, idx *flatIndex, m domain.Manifest) error {
	data, err := idx.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, IndexFile), data, 0o644); err != nil {
		return err
	}
	if err := writeMetadata(ctx, filepath.Join(dir, MetadataFile), s.staged); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	return manifest.Write(dir, m)
}

// swap moves tmp to dir. An existing dir is renamed aside first and removed
// once the new one is in place.
func swap(tmp, dir string) error {
	old := ""
	if _, err := os.Stat(dir); err == nil {
		old = dir + ".old-" + strconv.FormatInt(time.Now().UnixNano(), 36)
		if err := os.Rename(dir, old); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		if old != "" {
			_ = os.Rename(old, dir)
		}
		return err
	}
	if old != "" {
		return os.RemoveAll(old)
	}
	return nil
}

// Open loads a committed index read-only. The three artifacts must agree on
// the number of entries.
func (s *Storage) Open(ctx context.Context) (domain.Manifest, error) {
	if err := s.recoverAside(); err != nil {
		return domain.Manifest{}, errs.ErrIndexCorrupt.Wrap(err)
	}
	m, err := manifest.Read(s.dir)
	if err != nil {
		return domain.Manifest{}, err
	}
	indexPath := filepath.Join(s.dir, IndexFile)
	metaPath := filepath.Join(s.dir, MetadataFile)
	for _, p := range []string{indexPath, metaPath} {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return domain.Manifest{}, errs.ErrIndexMissing.Wrapf("%s not found", p)
		}
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return domain.Manifest{}, err
	}
	idx := &flatIndex{}
	if err := idx.UnmarshalBinary(data); err != nil {
		return domain.Manifest{}, errs.ErrIndexCorrupt.Wrapf("%s: %v", indexPath, err)
	}
	chunks, err := readMetadata(ctx, metaPath)
	if err != nil {
		return domain.Manifest{}, errs.ErrIndexCorrupt.Wrapf("%s: %v", metaPath, err)
	}
	if idx.Len() != len(chunks) || idx.Len() != m.Count {
		return domain.Manifest{}, errs.ErrIndexCorrupt.Wrapf("index has %d vectors, metadata %d rows, manifest %d", idx.Len(), len(chunks), m.Count)
	}
	if idx.dim != m.Dimension {
		return domain.Manifest{}, errs.ErrIndexCorrupt.Wrapf("index dimension %d, manifest %d", idx.dim, m.Dimension)
	}

	s.mu.Lock()
	s.index, s.chunks, s.manifest = idx, chunks, m
	s.dimension = idx.dim
	s.mu.Unlock()
	s.log.Debug("index opened", "count", m.Count)
	return m, nil
}

// recoverAside puts back an index that swap renamed aside when the process
// stopped before the new directory was moved in. The newest one wins.
func (s *Storage) recoverAside() error {
	if _, err := os.Stat(s.dir); !errors.Is(err, os.ErrNotExist) {
		return nil
	}
	aside, err := filepath.Glob(s.dir + ".old-*")
	if err != nil || len(aside) == 0 {
		return err
	}
	newest, newestAt := "", time.Time{}
	for _, p := range aside {
		fi, err := os.Stat(p)
		if err != nil || !fi.IsDir() {
			continue
		}
		if newest == "" || fi.ModTime().After(newestAt) {
			newest, newestAt = p, fi.ModTime()
		}
	}
	if newest == "" {
		return nil
	}
	if err := os.Rename(newest, s.dir); err != nil {
		return err
	}
	s.log.Warn("recovered index left aside by an interrupted rebuild", "from", newest)
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, errs.ErrIndexMissing
	}
	if topK <= 0 {
		topK = 5
	}
	hits, err := s.index.query(vector, topK)
	if err != nil {
		return nil, errs.ErrIndexCorrupt.Wrap(err)
	}
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, domain.SearchResult{Chunk: s.chunks[h.pos], Score: h.score})
	}
	return results, nil
}

// Chunks returns the metadata of the loaded index in position order.
func (s *Storage) Chunks() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks...)
}

// Clear removes the index directory and forgets the loaded index.
func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index, s.chunks, s.manifest = nil, nil, domain.Manifest{}
	s.staged, s.vectors = nil, nil
	return os.RemoveAll(s.dir)
}

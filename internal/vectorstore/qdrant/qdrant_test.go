package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanquery/internal/domain"
	"loanquery/internal/errs"
)

// fakeQdrant keeps the points of each collection in memory.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string][]map[string]any
	failUpsert  bool
	apiKeys     []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
	name, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/collections/"), "/")
	points, exists := f.collections[name]
	switch {
	case r.Method == http.MethodPut && rest == "":
		f.collections[name] = nil
	case r.Method == http.MethodDelete && rest == "":
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.collections, name)
	case !exists:
		w.WriteHeader(http.StatusNotFound)
		return
	case r.Method == http.MethodPut && rest == "points":
		if f.failUpsert {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body struct {
			Points []map[string]any `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.collections[name] = append(points, body.Points...)
	case r.Method == http.MethodGet && rest == "":
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points_count": len(points)}})
		return
	case r.Method == http.MethodPost && rest == "points/search":
		var res []map[string]any
		for i := len(points) - 1; i >= 0; i-- {
			res = append(res, map[string]any{"score": 0.5 + float64(i)/10, "payload": points[i]["payload"]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": res})
		return
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_, _ = w.Write([]byte(`{"result":true}`))
}

func (f *fakeQdrant) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.collections))
	for name := range f.collections {
		out = append(out, name)
	}
	return out
}

func (f *fakeQdrant) points(name string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collections[name]
}

func newStore(t *testing.T) (*Storage, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{collections: map[string][]map[string]any{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "loans", ManifestDir: t.TempDir()}, nil), fake
}

func TestBuildOpenSearch(t *testing.T) {
	ctx := context.Background()
	s, fake := newStore(t)
	chunks := []domain.Chunk{
		{ID: "LP1", Position: 0, Text: "first", Record: domain.Record{LoanID: "LP1", LoanStatus: "Y"}},
		{ID: "LP2", Position: 1, Text: "second", Record: domain.Record{LoanID: "LP2", LoanStatus: "N"}},
	}
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, chunks, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, s.Commit(ctx, domain.Manifest{Embedder: "tfidf", Count: 2}))

	m, err := s.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Dimension)
	assert.True(t, strings.HasPrefix(m.Collection, "loans_"))
	assert.Equal(t, []string{m.Collection}, fake.names())
	assert.EqualValues(t, 0, fake.points(m.Collection)[0]["id"])

	res, err := s.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "LP2", res[0].Chunk.ID)
	assert.Equal(t, 1, res[0].Chunk.Position)
	assert.Equal(t, "N", res[0].Chunk.Record.LoanStatus)
	assert.Contains(t, fake.apiKeys, "secret")
}

func TestOpenCountMismatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "a"}}, [][]float32{{1, 0}}))
	require.NoError(t, s.Commit(ctx, domain.Manifest{Count: 5}))
	_, err := s.Open(ctx)
	assert.True(t, errors.Is(err, errs.ErrIndexCorrupt))
}

func TestOpenWithoutManifest(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Open(context.Background())
	assert.True(t, errors.Is(err, errs.ErrIndexMissing))
}

func TestOpenWithoutCollection(t *testing.T) {
	ctx := context.Background()
	s, fake := newStore(t)
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Commit(ctx, domain.Manifest{Count: 0}))
	fake.mu.Lock()
	clear(fake.collections)
	fake.mu.Unlock()
	_, err := s.Open(ctx)
	assert.True(t, errors.Is(err, errs.ErrIndexMissing))
}

func TestCommitWithoutInit(t *testing.T) {
	s, _ := newStore(t)
	err := s.Commit(context.Background(), domain.Manifest{})
	assert.True(t, errors.Is(err, errs.ErrIndexWrite))
	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	assert.True(t, errors.Is(err, errs.ErrIndexMissing))
}

func TestFailedRebuildKeepsServedCollection(t *testing.T) {
	ctx := context.Background()
	s, fake := newStore(t)
	first := []domain.Chunk{{ID: "LP1", Position: 0, Text: "first"}}
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, first, [][]float32{{1, 0}}))
	require.NoError(t, s.Commit(ctx, domain.Manifest{Count: 1}))
	served := fake.names()
	require.Len(t, served, 1)

	fake.mu.Lock()
	fake.failUpsert = true
	fake.mu.Unlock()
	require.NoError(t, s.Init(ctx, 2))
	err := s.Upsert(ctx, []domain.Chunk{{ID: "LP2", Position: 0}}, [][]float32{{0, 1}})
	assert.True(t, errors.Is(err, errs.ErrIndexWrite))

	res, err := s.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "LP1", res[0].Chunk.ID)

	// a restarted process still finds the old collection
	reopened := NewStorage(Config{URL: s.url, APIKey: "secret", Collection: "loans", ManifestDir: s.manifestDir}, nil)
	m, err := reopened.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, served[0], m.Collection)

	// the next successful build replaces both leftovers
	fake.mu.Lock()
	fake.failUpsert = false
	fake.mu.Unlock()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "LP2", Position: 0}}, [][]float32{{0, 1}}))
	require.NoError(t, s.Commit(ctx, domain.Manifest{Count: 1}))
	names := fake.names()
	require.Len(t, names, 1)
	assert.NotEqual(t, served[0], names[0])
	res, err = s.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "LP2", res[0].Chunk.ID)
}

func TestCommitDropsLegacyCollection(t *testing.T) {
	ctx := context.Background()
	s, fake := newStore(t)
	fake.collections["loans"] = []map[string]any{{"id": 0}}
	require.NoError(t, os.WriteFile(filepath.Join(s.manifestDir, "manifest.yaml"), []byte("version: 1\ncount: 1\n"), 0o644))
	_, err := s.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: "LP1"}}, [][]float32{{1, 0}}))
	require.NoError(t, s.Commit(ctx, domain.Manifest{Count: 1}))
	names := fake.names()
	require.Len(t, names, 1)
	assert.NotEqual(t, "loans", names[0])
}

func TestUpsertMismatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Init(ctx, 2))
	assert.True(t, errors.Is(s.Upsert(ctx, []domain.Chunk{{}}, nil), errs.ErrIndexWrite))
	assert.True(t, errors.Is(s.Upsert(ctx, []domain.Chunk{{}}, [][]float32{{1}}), errs.ErrIndexWrite))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, fake := newStore(t)
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Commit(ctx, domain.Manifest{}))
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, fake.names())
	_, err := s.Open(ctx)
	assert.True(t, errors.Is(err, errs.ErrIndexMissing))
}

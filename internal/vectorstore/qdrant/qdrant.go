package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"loanquery/internal/domain"
	"loanquery/internal/errs"
	"loanquery/internal/vectorstore/manifest"
)

const upsertBatch = 256

// Storage is a minimal REST client to Qdrant. Points use the row position as
// their integer id and cosine distance; the manifest lives in a local
// directory next to the dataset.
//
// Every build writes a new collection named after the configured one. Commit
// records it in the manifest before the previous collection is dropped, so a
// failed build leaves the served collection alone.
type Storage struct {
	url         string
	apiKey      string
	collection  string
	manifestDir string
	client      *http.Client
	log         *slog.Logger

	mu       sync.RWMutex
	active   string
	building string
	buildDim int
}

type Config struct {
	URL         string
	APIKey      string
	Collection  string
	Timeout     time.Duration
	ManifestDir string
}

type payload struct {
	LoanID   string        `json:"loan_id"`
	Position int           `json:"position"`
	Text     string        `json:"text"`
	Record   domain.Record `json:"record"`
}

func NewStorage(cfg Config, log *slog.Logger) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "loan_data"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Storage{
		url:         strings.TrimRight(cfg.URL, "/"),
		apiKey:      cfg.APIKey,
		collection:  cfg.Collection,
		manifestDir: cfg.ManifestDir,
		client:      &http.Client{Timeout: timeout},
		log:         log.With("component", "qdrant", "collection", cfg.Collection),
	}
}

func (s *Storage) collectionURL(name string) string {
	return fmt.Sprintf("%s/collections/%s", s.url, name)
}

// collectionOf names the collection a manifest points at. Manifests written
// before collections were versioned use the configured name.
func (s *Storage) collectionOf(m domain.Manifest) string {
	if m.Collection != "" {
		return m.Collection
	}
	return s.collection
}

func (s *Storage) drop(ctx context.Context, name string) error {
	if _, err := s.do(ctx, http.MethodDelete, s.collectionURL(name), nil, nil); err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

// Init creates an empty collection for the next build. A collection left by
// an earlier build that never committed is dropped first.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errs.ErrIndexWrite.Wrapf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	stale := s.building
	s.building, s.buildDim = "", 0
	s.mu.Unlock()
	if stale != "" {
		if err := s.drop(ctx, stale); err != nil {
			s.log.Warn("failed to drop abandoned collection", "name", stale, "error", err)
		}
	}

	name := s.collection + "_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(name), body, nil); err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	s.mu.Lock()
	s.building, s.buildDim = name, dimension
	s.mu.Unlock()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errs.ErrIndexWrite.Wrapf("%d chunks but %d vectors", len(chunks), len(vectors))
	}
	s.mu.RLock()
	name, dim := s.building, s.buildDim
	s.mu.RUnlock()
	if name == "" {
		return errs.ErrIndexWrite.Wrapf("no collection is being built")
	}
	for start := 0; start < len(chunks); start += upsertBatch {
		end := min(start+upsertBatch, len(chunks))
		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			c := chunks[i]
			if len(vectors[i]) != dim {
				return errs.ErrIndexWrite.Wrapf("vector %d has dimension %d, want %d", i, len(vectors[i]), dim)
			}
			points = append(points, map[string]any{
				"id":      c.Position,
				"vector":  vectors[i],
				"payload": payload{LoanID: c.ID, Position: c.Position, Text: c.Text, Record: c.Record},
			})
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL(name)+"/points?wait=true", map[string]any{"points": points}, nil); err != nil {
			return errs.ErrIndexWrite.Wrap(err)
		}
	}
	return nil
}

// Commit points the manifest at the collection just built, then drops the
// one it replaces.
func (s *Storage) Commit(ctx context.Context, m domain.Manifest) error {
	s.mu.Lock()
	name, dim := s.building, s.buildDim
	if name == "" {
		s.mu.Unlock()
		return errs.ErrIndexWrite.Wrapf("no collection is being built")
	}
	prev := s.active
	if prev == "" {
		if old, err := manifest.Read(s.manifestDir); err == nil {
			prev = s.collectionOf(old)
		}
	}
	m.Dimension, m.Collection = dim, name
	if m.BuiltAt.IsZero() {
		m.BuiltAt = time.Now().UTC()
	}
	if err := manifest.Write(s.manifestDir, m); err != nil {
		s.mu.Unlock()
		return err
	}
	s.active, s.building, s.buildDim = name, "", 0
	s.mu.Unlock()

	s.log.Info("index committed", "name", name, "count", m.Count, "dimension", m.Dimension)
	if prev != "" && prev != name {
		if err := s.drop(ctx, prev); err != nil {
			s.log.Warn("failed to drop previous collection", "name", prev, "error", err)
		}
	}
	return nil
}

// Open checks that the manifest and its collection agree on the point count.
func (s *Storage) Open(ctx context.Context) (domain.Manifest, error) {
	m, err := manifest.Read(s.manifestDir)
	if err != nil {
		return domain.Manifest{}, err
	}
	name := s.collectionOf(m)
	var info struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, &info); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Manifest{}, errs.ErrIndexMissing.Wrapf("collection %s not found", name)
		}
		return domain.Manifest{}, err
	}
	if info.Result.PointsCount != m.Count {
		return domain.Manifest{}, errs.ErrIndexCorrupt.Wrapf("collection has %d points, manifest %d", info.Result.PointsCount, m.Count)
	}
	s.mu.Lock()
	s.active = name
	s.mu.Unlock()
	return m, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	s.mu.RLock()
	name := s.active
	s.mu.RUnlock()
	if name == "" {
		return nil, errs.ErrIndexMissing.Wrapf("no collection is open")
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL(name)+"/points/search", req, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, errs.ErrIndexMissing.Wrap(err)
		}
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				ID:       r.Payload.LoanID,
				Position: r.Payload.Position,
				Text:     r.Payload.Text,
				Record:   r.Payload.Record,
			},
			Score: r.Score,
		})
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Clear drops the served and building collections and the manifest.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := []string{s.active, s.building}
	if m, err := manifest.Read(s.manifestDir); err == nil {
		names = append(names, s.collectionOf(m))
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := s.drop(ctx, name); err != nil {
			return err
		}
	}
	s.active, s.building, s.buildDim = "", "", 0
	return os.RemoveAll(s.manifestDir)
}

type statusError struct {
	method, url string
	status      int
	body        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.status, e.body)
}

func isStatus(err error, status int) bool {
	se, ok := err.(*statusError)
	return ok && se.status == status
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &statusError{method: method, url: url, status: resp.StatusCode, body: strings.TrimSpace(string(excerpt))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// Package service wires the loan dataset, the index and the answer generator
// into the operations the dashboard and the terminal chat call.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"loanquery/internal/dataset"
	"loanquery/internal/domain"
	"loanquery/internal/errs"
	"loanquery/internal/generator"
	"loanquery/internal/session"
)

// WelcomeMessage opens every new conversation.
const WelcomeMessage = "👋 Welcome! Ask me anything about the loan approval dataset: approval factors, " +
	"credit history, income, employment or property area. Pick a sample question to get started."

var sampleQuestions = []string{
	"What factors affect loan approval?",
	"Why are loans denied?",
	"How does credit history impact approval?",
	"What's the approval rate by property area?",
	"Do self-employed applicants get approved less?",
	"How does income affect loan decisions?",
}

// Answerer produces the answer text for a question and its context.
type Answerer interface {
	Generate(ctx context.Context, creds generator.Credentials, question string, results []domain.SearchResult) generator.Answer
}

// chunkLister is implemented by stores that can hand back their metadata.
type chunkLister interface {
	Chunks() []domain.Chunk
}

type Options struct {
	DatasetPath         string
	TopK                int
	SummaryMaxSentences int
	// EmbedConcurrency bounds parallel Embed calls during BuildIndex.
	EmbedConcurrency int
	// DefaultAPIKey is used by sessions that did not set their own key.
	DefaultAPIKey string
}

type BuildOptions struct {
	// Force rebuilds even when the stored index matches the dataset.
	Force bool
}

type BuildReport struct {
	Rows      int
	Dimension int
	Skipped   bool
	Fills     []dataset.Fill
	Duration  time.Duration
}

// Info is the dataset overview plus a few representative records.
type Info struct {
	dataset.Overview
	Highlights []string        `json:"highlights"`
	Summary    string          `json:"summary"`
	Manifest   domain.Manifest `json:"-"`
}

type Service struct {
	opts       Options
	chunker    domain.Chunker
	embedder   domain.Embedder
	store      domain.VectorStore
	summarizer domain.Summarizer
	answerer   Answerer
	log        *slog.Logger

	build sync.Mutex
	// serving pairs the embedder with the index the store serves; builds
	// publish both under the write lock.
	serving sync.RWMutex

	mu       sync.RWMutex
	ready    bool
	manifest domain.Manifest
	info     *Info
}

func New(opts Options, chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, summarizer domain.Summarizer, answerer Answerer, log *slog.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 1
	}
	if opts.SummaryMaxSentences <= 0 {
		opts.SummaryMaxSentences = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		opts:       opts,
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		summarizer: summarizer,
		answerer:   answerer,
		log:        log.With("component", "service"),
	}
}

// BuildIndex loads the dataset, embeds one sentence per row and commits the
// index. An index whose manifest matches the dataset digest, row count and
// embedder is reused unless opts.Force is set. The serving index and its
// embedder are replaced together, only after Commit succeeds.
func (s *Service) BuildIndex(ctx context.Context, opts BuildOptions) (BuildReport, error) {
	s.build.Lock()
	defer s.build.Unlock()
	start := time.Now()

	digest, err := dataset.FileDigest(s.opts.DatasetPath)
	if err != nil {
		return BuildReport{}, err
	}
	table, err := dataset.Load(s.opts.DatasetPath)
	if err != nil {
		return BuildReport{}, err
	}
	fills := table.Impute()
	for _, f := range fills {
		s.log.Info("imputed column", "column", f.Column, "missing", f.Missing, "value", f.Value)
	}
	records := table.Records()
	chunks, err := s.chunker.Chunk(records)
	if err != nil {
		return BuildReport{}, err
	}
	if len(chunks) == 0 {
		return BuildReport{}, errs.ErrSchema.Wrapf("%s has no data rows", s.opts.DatasetPath)
	}

	if !opts.Force {
		if m, ok := s.reuse(ctx, digest, len(records)); ok {
			s.setState(m, chunks, records)
			s.log.Info("dataset unchanged, index reused", "rows", m.Count)
			return BuildReport{Rows: m.Count, Dimension: m.Dimension, Skipped: true, Fills: fills, Duration: time.Since(start)}, nil
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	emb := s.fork()
	if err := emb.Prepare(ctx, texts); err != nil {
		return BuildReport{}, err
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbedConcurrency)
	for i := range texts {
		g.Go(func() error {
			v, err := emb.Embed(gctx, texts[i])
			if err != nil {
				return err
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BuildReport{}, err
	}

	dim := emb.Dimension()
	if dim <= 0 || len(vectors[0]) != dim {
		return BuildReport{}, errs.ErrModelLoad.Wrapf("%s reports dimension %d, vectors have %d", emb.Name(), dim, len(vectors[0]))
	}
	m := domain.Manifest{
		Embedder:      emb.Name(),
		Count:         len(chunks),
		DatasetPath:   s.opts.DatasetPath,
		DatasetDigest: digest,
		BuiltAt:       time.Now().UTC(),
	}
	if snap, ok := emb.(domain.Snapshotter); ok {
		state, err := snap.Snapshot()
		if err != nil {
			return BuildReport{}, err
		}
		m.EmbedderState = string(state)
	}
	if err := s.store.Init(ctx, dim); err != nil {
		return BuildReport{}, err
	}
	if err := s.store.Upsert(ctx, chunks, vectors); err != nil {
		return BuildReport{}, err
	}

	s.serving.Lock()
	err = s.store.Commit(ctx, m)
	if err == nil {
		s.embedder = emb
	}
	s.serving.Unlock()
	if err != nil {
		return BuildReport{}, err
	}

	m.Dimension = dim
	s.setState(m, chunks, records)
	s.log.Info("index built", "rows", len(chunks), "dimension", dim, "elapsed", time.Since(start))
	return BuildReport{Rows: len(chunks), Dimension: dim, Fills: fills, Duration: time.Since(start)}, nil
}

// reuse opens the stored index and serves it when it was built from the same
// dataset with the configured embedder.
func (s *Service) reuse(ctx context.Context, digest string, rows int) (domain.Manifest, bool) {
	s.serving.Lock()
	defer s.serving.Unlock()
	m, err := s.store.Open(ctx)
	if err != nil || m.DatasetDigest != digest || m.Count != rows || m.Embedder != s.embedder.Name() {
		return domain.Manifest{}, false
	}
	emb, err := s.restored(m)
	if err != nil {
		s.log.Warn("stored index unusable, rebuilding", "error", err)
		return domain.Manifest{}, false
	}
	s.embedder = emb
	return m, true
}

// Open loads a built index for retrieval.
func (s *Service) Open(ctx context.Context) error {
	s.serving.Lock()
	m, err := s.store.Open(ctx)
	if err == nil && m.Embedder != s.embedder.Name() {
		err = errs.ErrIndexCorrupt.Wrapf("index was built with %s but %s is configured", m.Embedder, s.embedder.Name())
	}
	var emb domain.Embedder
	if err == nil {
		emb, err = s.restored(m)
	}
	if err == nil {
		s.embedder = emb
	}
	s.serving.Unlock()
	if err != nil {
		return err
	}

	var chunks []domain.Chunk
	if cl, ok := s.store.(chunkLister); ok {
		chunks = cl.Chunks()
	}
	var records []domain.Record
	if digest, err := dataset.FileDigest(s.opts.DatasetPath); err != nil {
		s.log.Warn("dataset unavailable, overview built from index metadata", "error", err)
	} else {
		if digest != m.DatasetDigest {
			s.log.Warn("dataset changed since the index was built; run loanquery-setup to rebuild", "path", s.opts.DatasetPath)
		}
		if table, err := dataset.Load(s.opts.DatasetPath); err == nil {
			table.Impute()
			records = table.Records()
		} else {
			s.log.Warn("dataset could not be loaded for the overview", "error", err)
		}
	}
	if records == nil {
		for _, c := range chunks {
			records = append(records, c.Record)
		}
	}
	s.setState(m, chunks, records)
	s.log.Info("index opened", "rows", m.Count, "embedder", m.Embedder)
	return nil
}

// ClearIndex removes the stored index. Retrieval fails with ErrIndexMissing
// until the next build.
func (s *Service) ClearIndex(ctx context.Context) error {
	s.build.Lock()
	defer s.build.Unlock()
	s.serving.Lock()
	err := s.store.Clear(ctx)
	s.serving.Unlock()
	if err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	s.mu.Lock()
	s.ready, s.manifest, s.info = false, domain.Manifest{}, nil
	s.mu.Unlock()
	s.log.Info("index removed")
	return nil
}

// fork returns the embedder a build prepares. Embedders with fitted state are
// forked so the serving one keeps answering in the old vector space.
func (s *Service) fork() domain.Embedder {
	s.serving.RLock()
	defer s.serving.RUnlock()
	if f, ok := s.embedder.(domain.Forker); ok {
		return f.Fork()
	}
	return s.embedder
}

// restored returns an embedder in the vector space recorded by m. Callers
// hold the serving lock.
func (s *Service) restored(m domain.Manifest) (domain.Embedder, error) {
	snap, ok := s.embedder.(domain.Snapshotter)
	if !ok {
		return s.embedder, nil
	}
	if m.EmbedderState == "" {
		return nil, errs.ErrIndexCorrupt.Wrapf("manifest has no embedder state for %s", m.Embedder)
	}
	emb := s.embedder
	if f, ok := s.embedder.(domain.Forker); ok {
		emb = f.Fork()
		if snap, ok = emb.(domain.Snapshotter); !ok {
			return nil, errs.ErrModelLoad.Wrapf("%s fork cannot restore state", emb.Name())
		}
	}
	if err := snap.Restore([]byte(m.EmbedderState)); err != nil {
		return nil, err
	}
	if d := emb.Dimension(); m.Dimension > 0 && d != m.Dimension {
		return nil, errs.ErrIndexCorrupt.Wrapf("embedder dimension %d, index %d", d, m.Dimension)
	}
	return emb, nil
}

func (s *Service) setState(m domain.Manifest, chunks []domain.Chunk, records []domain.Record) {
	info := &Info{Overview: dataset.Describe(records), Manifest: m}
	if len(chunks) > 0 && s.summarizer != nil {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		for _, idx := range s.summarizer.Pick(texts, s.opts.SummaryMaxSentences) {
			info.Highlights = append(info.Highlights, texts[idx])
		}
		if sum, err := s.summarizer.Summarize(strings.Join(info.Highlights, " "), s.opts.SummaryMaxSentences); err == nil {
			info.Summary = sum
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	s.manifest = m
	s.info = info
}

// Ready reports whether an index is open for retrieval.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Retrieve returns at most k rows ordered by non-increasing similarity. The
// question is embedded and searched under one read lock so a concurrent build
// cannot pair it with an index from another vector space.
func (s *Service) Retrieve(ctx context.Context, question string, k int) ([]domain.SearchResult, error) {
	if !s.Ready() {
		return nil, errs.ErrIndexMissing
	}
	if k <= 0 {
		k = s.opts.TopK
	}
	s.serving.RLock()
	defer s.serving.RUnlock()
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, vec, k)
}

// Ask answers question within sess and records the turn. Generation never
// fails; retrieval errors are returned and nothing is recorded.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string) (domain.Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Turn{}, errs.ErrEmptyQuestion
	}
	unlock := sess.Lock()
	defer unlock()

	results, err := s.Retrieve(ctx, question, s.opts.TopK)
	if err != nil {
		return domain.Turn{}, err
	}
	ans := s.answerer.Generate(ctx, sess.Credentials(s.opts.DefaultAPIKey), question, results)
	turn := domain.Turn{
		Question: question,
		Answer:   ans.Text,
		Sources:  results,
		Mode:     ans.Mode,
		Notice:   ans.Notice,
		At:       time.Now(),
	}
	sess.Append(turn)
	s.log.Debug("question answered", "session", sess.ID, "mode", ans.Mode, "sources", len(results))
	return turn, nil
}

// DatasetInfo returns the overview of the opened dataset.
func (s *Service) DatasetInfo() (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return Info{}, errs.ErrIndexMissing
	}
	return *s.info, nil
}

// SampleQuestions are offered as one-click prompts.
func (s *Service) SampleQuestions() []string {
	return append([]string(nil), sampleQuestions...)
}

// HasDefaultAPIKey reports whether a process-wide credential is configured.
func (s *Service) HasDefaultAPIKey() bool { return s.opts.DefaultAPIKey != "" }

// IsSetupError reports errors that running setup would fix.
func IsSetupError(err error) bool {
	return errors.Is(err, errs.ErrIndexMissing) || errors.Is(err, errs.ErrIndexCorrupt)
}

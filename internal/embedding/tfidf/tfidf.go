package tfidf

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"

	"loanquery/internal/domain"
	"loanquery/internal/errs"
)

// Embedder is a TF-IDF vectorizer whose vocabulary is fitted on the loan
// sentences. The fitted state is exported with Snapshot so questions are
// embedded in the same space as the indexed corpus.
type Embedder struct {
	vocabulary   map[string]int
	idf          []float64
	dimension    int
	prepared     bool
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// state is the serialised form of a prepared embedder. Terms are sorted, so
// a term's position is its vector index.
type state struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`
}

func NewEmbedder() *Embedder {
	return &Embedder{
		vocabulary: make(map[string]int),
		// keeps hyphenated words ("self-employed") and numbers ("5849.0", "3") as tokens
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:[-'.][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Embedder) Name() string { return "tfidf" }

// Fork returns an empty embedder. A prepared Embedder is never refitted while
// it serves queries; rebuilds prepare a fork instead.
func (e *Embedder) Fork() domain.Embedder { return NewEmbedder() }

// Prepare builds the vocabulary and smoothed IDF values from the corpus.
func (e *Embedder) Prepare(ctx context.Context, corpus []string) error {
	if len(corpus) == 0 {
		return errs.ErrModelLoad.Wrapf("empty corpus for TF-IDF prepare")
	}
	df := make(map[string]int)
	for i, text := range corpus {
		if i%256 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return errs.ErrModelLoad.Wrapf("no tokens found in corpus")
	}
	idf := make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	e.load(terms, idf)
	return nil
}

func (e *Embedder) load(terms []string, idf []float64) {
	e.vocabulary = make(map[string]int, len(terms))
	for i, term := range terms {
		e.vocabulary[term] = i
	}
	e.idf = idf
	e.dimension = len(terms)
	e.prepared = true
}

func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the L2-normalised TF-IDF vector for text. Text with no known
// terms yields the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	if !e.prepared {
		return nil, errs.ErrModelLoad.Wrapf("tfidf embedder not prepared")
	}
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	vec := make([]float32, e.dimension)
	if total == 0 {
		return vec, nil
	}
	weights := make(map[int]float64, len(tf))
	norm := 0.0
	for idx, count := range tf {
		w := float64(count) / float64(total) * e.idf[idx]
		weights[idx] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for idx, w := range weights {
		vec[idx] = float32(w / norm)
	}
	return vec, nil
}

// Snapshot exports the fitted vocabulary and IDF weights.
func (e *Embedder) Snapshot() ([]byte, error) {
	if !e.prepared {
		return nil, errs.ErrModelLoad.Wrapf("tfidf embedder not prepared")
	}
	terms := make([]string, len(e.vocabulary))
	for term, i := range e.vocabulary {
		terms[i] = term
	}
	return json.Marshal(state{Terms: terms, IDF: e.idf})
}

// Restore loads a snapshot produced by Snapshot.
func (e *Embedder) Restore(data []byte) error {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return errs.ErrModelLoad.Wrap(err)
	}
	if len(s.Terms) == 0 || len(s.Terms) != len(s.IDF) {
		return errs.ErrModelLoad.Wrapf("tfidf snapshot has %d terms and %d weights", len(s.Terms), len(s.IDF))
	}
	e.load(s.Terms, s.IDF)
	return nil
}

func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"who", "they", "what", "how", "does", "do", "why", "which",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

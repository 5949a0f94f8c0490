package domain

import (
	"context"
	"time"
)

// Record is one loan application row after imputation.
type Record struct {
	LoanID            string  `json:"loan_id"`
	Gender            string  `json:"gender"`
	Married           string  `json:"married"`
	Dependents        string  `json:"dependents"`
	Education         string  `json:"education"`
	SelfEmployed      string  `json:"self_employed"`
	ApplicantIncome   float64 `json:"applicant_income"`
	CoapplicantIncome float64 `json:"coapplicant_income"`
	LoanAmount        float64 `json:"loan_amount"`
	LoanAmountTerm    float64 `json:"loan_amount_term"`
	CreditHistory     string  `json:"credit_history"`
	PropertyArea      string  `json:"property_area"`
	LoanStatus        string  `json:"loan_status"`
}

// Chunk is the indexed unit: the sentence describing one record.
// Position is the row index and the vector position in the index.
type Chunk struct {
	ID       string
	Position int
	Text     string
	Record   Record
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Mode tells how an answer was produced.
type Mode string

const (
	ModeLive Mode = "live"
	ModeDemo Mode = "demo"
)

// Turn is one question/answer exchange with the context that fed it.
type Turn struct {
	Question string
	Answer   string
	Sources  []SearchResult
	Mode     Mode
	// Notice carries a user-facing message when live generation failed.
	Notice string
	At     time.Time
}

// Manifest describes a built index.
type Manifest struct {
	Version       int       `yaml:"version"`
	Embedder      string    `yaml:"embedder"`
	Dimension     int       `yaml:"dimension"`
	Count         int       `yaml:"count"`
	DatasetPath   string    `yaml:"dataset_path"`
	DatasetDigest string    `yaml:"dataset_digest"`
	BuiltAt       time.Time `yaml:"built_at"`
	EmbedderState string    `yaml:"embedder_state,omitempty"`
	Collection    string    `yaml:"collection,omitempty"`
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Snapshotter is implemented by embedders whose vector space depends on the
// corpus seen in Prepare; the snapshot travels with the index.
type Snapshotter interface {
	Snapshot() ([]byte, error)
	Restore(state []byte) error
}

// Forker is implemented by embedders whose Prepare or Restore changes their
// vector space. Fork returns an unprepared embedder with the same settings.
type Forker interface {
	Fork() Embedder
}

// Chunker turns records into indexable chunks.
type Chunker interface {
	Chunk(records []Record) ([]Chunk, error)
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Commit(ctx context.Context, manifest Manifest) error
	Open(ctx context.Context) (Manifest, error)
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	Clear(ctx context.Context) error
}

// Summarizer produces a brief summary of the provided text and picks the
// most representative documents of a collection.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
	Pick(docs []string, n int) []int
}

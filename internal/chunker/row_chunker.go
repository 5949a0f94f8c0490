package chunker

import (
	"strconv"
	"strings"

	"loanquery/internal/dataset"
	"loanquery/internal/domain"
)

// RowChunker turns every record into exactly one chunk holding its sentence.
type RowChunker struct {
	sentence func(domain.Record) string
}

func NewRowChunker() *RowChunker {
	return &RowChunker{sentence: dataset.Sentence}
}

func (c *RowChunker) Chunk(records []domain.Record) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0, len(records))
	for i, rec := range records {
		id := strings.TrimSpace(rec.LoanID)
		if id == "" {
			id = "Unknown_" + strconv.Itoa(i)
		}
		chunks = append(chunks, domain.Chunk{
			ID:       id,
			Position: i,
			Text:     c.sentence(rec),
			Record:   rec,
		})
	}
	return chunks, nil
}

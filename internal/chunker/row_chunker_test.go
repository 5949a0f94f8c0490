package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanquery/internal/domain"
)

func TestRowChunkerOneChunkPerRecord(t *testing.T) {
	records := []domain.Record{
		{LoanID: "LP001002", Gender: "Male", Married: "Yes", Education: "Graduate", LoanStatus: "Y", ApplicantIncome: 5849},
		{LoanID: "", Gender: "Female", Married: "No", Education: "Graduate", LoanStatus: "N"},
		{LoanID: "LP001005", Gender: "Male", Married: "Yes", Education: "Not Graduate", LoanStatus: "Y"},
	}
	chunks, err := NewRowChunker().Chunk(records)
	require.NoError(t, err)
	require.Len(t, chunks, len(records))

	for i, c := range chunks {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, records[i], c.Record)
		assert.NotEmpty(t, c.Text)
	}
	assert.Equal(t, "LP001002", chunks[0].ID)
	assert.Equal(t, "Unknown_1", chunks[1].ID)
	assert.Contains(t, chunks[0].Text, "Applicant LP001002")
	assert.Contains(t, chunks[1].Text, "denied")
}

func TestRowChunkerDeterministic(t *testing.T) {
	records := []domain.Record{{LoanID: "A", LoanStatus: "Y"}, {LoanID: "B", LoanStatus: "N"}}
	c := NewRowChunker()
	a, err := c.Chunk(records)
	require.NoError(t, err)
	b, err := c.Chunk(records)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRowChunkerEmpty(t *testing.T) {
	chunks, err := NewRowChunker().Chunk(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

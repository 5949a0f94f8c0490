package web

import (
	"strconv"
	"time"

	"loanquery/internal/domain"
)

type sourceView struct {
	LoanID   string  `json:"loan_id"`
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

type turnView struct {
	Question string       `json:"question"`
	Answer   string       `json:"answer"`
	Mode     domain.Mode  `json:"mode"`
	Notice   string       `json:"notice,omitempty"`
	At       time.Time    `json:"at"`
	Sources  []sourceView `json:"sources"`
}

func toTurnView(t domain.Turn) turnView {
	v := turnView{Question: t.Question, Answer: t.Answer, Mode: t.Mode, Notice: t.Notice, At: t.At, Sources: []sourceView{}}
	for _, r := range t.Sources {
		v.Sources = append(v.Sources, sourceView{LoanID: r.Chunk.ID, Position: r.Chunk.Position, Text: r.Chunk.Text, Score: r.Score})
	}
	return v
}

func toTurnViews(turns []domain.Turn) []turnView {
	out := make([]turnView, 0, len(turns))
	for _, t := range turns {
		out = append(out, toTurnView(t))
	}
	return out
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

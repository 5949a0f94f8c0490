package dataset

import (
	"math"
	"sort"
	"strings"

	"loanquery/internal/domain"
)

// NumericStats summarises a numeric column.
type NumericStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// ValueCount is one entry of a categorical frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Overview is the dataset summary shown next to the chat.
type Overview struct {
	TotalRows   int                     `json:"total_rows"`
	Columns     []string                `json:"columns"`
	Approved    int                     `json:"approved"`
	Denied      int                     `json:"denied"`
	Numeric     map[string]NumericStats `json:"numeric"`
	Categorical map[string][]ValueCount `json:"categorical"`
	Samples     []domain.Record         `json:"samples"`
}

const (
	sampleRows = 5
	topValues  = 5
)

// Describe computes the overview of an imputed record set.
func Describe(records []domain.Record) Overview {
	ov := Overview{
		TotalRows:   len(records),
		Numeric:     make(map[string]NumericStats),
		Categorical: make(map[string][]ValueCount),
	}
	for _, col := range Schema {
		ov.Columns = append(ov.Columns, col.Name)
	}
	if len(records) == 0 {
		return ov
	}

	numeric := map[string]func(domain.Record) float64{
		ColApplicantIncome:   func(r domain.Record) float64 { return r.ApplicantIncome },
		ColCoapplicantIncome: func(r domain.Record) float64 { return r.CoapplicantIncome },
		ColLoanAmount:        func(r domain.Record) float64 { return r.LoanAmount },
		ColLoanAmountTerm:    func(r domain.Record) float64 { return r.LoanAmountTerm },
	}
	for name, get := range numeric {
		vals := make([]float64, len(records))
		for i, r := range records {
			vals[i] = get(r)
		}
		ov.Numeric[name] = stats(vals)
	}

	categorical := map[string]func(domain.Record) string{
		ColGender:        func(r domain.Record) string { return r.Gender },
		ColMarried:       func(r domain.Record) string { return r.Married },
		ColDependents:    func(r domain.Record) string { return r.Dependents },
		ColEducation:     func(r domain.Record) string { return r.Education },
		ColSelfEmployed:  func(r domain.Record) string { return r.SelfEmployed },
		ColCreditHistory: func(r domain.Record) string { return r.CreditHistory },
		ColPropertyArea:  func(r domain.Record) string { return r.PropertyArea },
		ColLoanStatus:    func(r domain.Record) string { return r.LoanStatus },
	}
	for name, get := range categorical {
		counts := make(map[string]int)
		for _, r := range records {
			counts[get(r)]++
		}
		ov.Categorical[name] = top(counts, topValues)
	}

	for _, r := range records {
		if strings.EqualFold(strings.TrimSpace(r.LoanStatus), "y") {
			ov.Approved++
		} else {
			ov.Denied++
		}
	}

	n := sampleRows
	if n > len(records) {
		n = len(records)
	}
	ov.Samples = append([]domain.Record(nil), records[:n]...)
	return ov
}

// stats uses the sample standard deviation (n-1).
func stats(vals []float64) NumericStats {
	s := NumericStats{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, v := range vals {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(vals))
	if len(vals) > 1 {
		sq := 0.0
		for _, v := range vals {
			d := v - s.Mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq / float64(len(vals)-1))
	}
	return s
}

func top(counts map[string]int, n int) []ValueCount {
	out := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

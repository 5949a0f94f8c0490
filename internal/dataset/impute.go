package dataset

import (
	"sort"
	"strconv"

	"loanquery/internal/domain"
)

// Fill describes how one column was imputed.
type Fill struct {
	Column  string
	Missing int
	Value   string
}

// Impute fills missing cells in place: categorical columns take the column
// mode, numeric columns the column median, and a missing Loan_ID becomes
// Unknown_<row>. A column with no values at all stays as it is. Only columns
// that had missing cells are reported.
func (t *Table) Impute() []Fill {
	var report []Fill
	for _, col := range Schema {
		cells := t.Columns[col.Name]
		missing := 0
		for _, c := range cells {
			if !c.Valid {
				missing++
			}
		}
		if missing == 0 {
			continue
		}
		fill := Fill{Column: col.Name, Missing: missing}
		switch col.Kind {
		case Identity:
			for i := range cells {
				if !cells[i].Valid {
					cells[i] = Cell{Raw: "Unknown_" + strconv.Itoa(i), Valid: true}
				}
			}
			fill.Value = "Unknown_<row>"
		case Categorical:
			m, ok := mode(cells)
			if !ok {
				break
			}
			for i := range cells {
				if !cells[i].Valid {
					cells[i] = Cell{Raw: m, Valid: true}
				}
			}
			fill.Value = m
		case Numeric:
			med, ok := median(cells)
			if !ok {
				break
			}
			raw := strconv.FormatFloat(med, 'f', -1, 64)
			for i := range cells {
				if !cells[i].Valid {
					cells[i] = Cell{Raw: raw, Num: med, Valid: true}
				}
			}
			fill.Value = raw
		}
		report = append(report, fill)
	}
	return report
}

// mode returns the most frequent valid value; ties go to the lexically smallest.
func mode(cells []Cell) (string, bool) {
	counts := make(map[string]int)
	for _, c := range cells {
		if c.Valid {
			counts[c.Raw]++
		}
	}
	if len(counts) == 0 {
		return "", false
	}
	best, bestN := "", -1
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best, true
}

// median of the valid numeric values; even counts average the middle pair.
func median(cells []Cell) (float64, bool) {
	vals := make([]float64, 0, len(cells))
	for _, c := range cells {
		if c.Valid {
			vals = append(vals, c.Num)
		}
	}
	if len(vals) == 0 {
		return 0, false
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid], true
	}
	return (vals[mid-1] + vals[mid]) / 2, true
}

// Records converts the table into records in file order. Cells that are still
// missing (a column with no values at all) become empty strings or zero.
func (t *Table) Records() []domain.Record {
	out := make([]domain.Record, t.Rows)
	str := func(col string, i int) string { return t.Columns[col][i].Raw }
	num := func(col string, i int) float64 { return t.Columns[col][i].Num }
	for i := 0; i < t.Rows; i++ {
		out[i] = domain.Record{
			LoanID:            str(ColLoanID, i),
			Gender:            str(ColGender, i),
			Married:           str(ColMarried, i),
			Dependents:        str(ColDependents, i),
			Education:         str(ColEducation, i),
			SelfEmployed:      str(ColSelfEmployed, i),
			ApplicantIncome:   num(ColApplicantIncome, i),
			CoapplicantIncome: num(ColCoapplicantIncome, i),
			LoanAmount:        num(ColLoanAmount, i),
			LoanAmountTerm:    num(ColLoanAmountTerm, i),
			CreditHistory:     str(ColCreditHistory, i),
			PropertyArea:      str(ColPropertyArea, i),
			LoanStatus:        str(ColLoanStatus, i),
		}
	}
	return out
}

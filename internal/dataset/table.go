package dataset

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"loanquery/internal/errs"
)

// Column names of the loan dataset.
const (
	ColLoanID            = "Loan_ID"
	ColGender            = "Gender"
	ColMarried           = "Married"
	ColDependents        = "Dependents"
	ColEducation         = "Education"
	ColSelfEmployed      = "Self_Employed"
	ColApplicantIncome   = "ApplicantIncome"
	ColCoapplicantIncome = "CoapplicantIncome"
	ColLoanAmount        = "LoanAmount"
	ColLoanAmountTerm    = "Loan_Amount_Term"
	ColCreditHistory     = "Credit_History"
	ColPropertyArea      = "Property_Area"
	ColLoanStatus        = "Loan_Status"
)

// Kind classifies a column for imputation.
type Kind int

const (
	Identity Kind = iota
	Categorical
	Numeric
)

// Schema lists the expected columns in file order. Credit_History is a 0/1
// flag and is imputed like a category.
var Schema = []struct {
	Name string
	Kind Kind
}{
	{ColLoanID, Identity},
	{ColGender, Categorical},
	{ColMarried, Categorical},
	{ColDependents, Categorical},
	{ColEducation, Categorical},
	{ColSelfEmployed, Categorical},
	{ColApplicantIncome, Numeric},
	{ColCoapplicantIncome, Numeric},
	{ColLoanAmount, Numeric},
	{ColLoanAmountTerm, Numeric},
	{ColCreditHistory, Categorical},
	{ColPropertyArea, Categorical},
	{ColLoanStatus, Categorical},
}

var naValues = map[string]struct{}{
	"": {}, "NA": {}, "na": {}, "N/A": {}, "NaN": {}, "nan": {}, "NULL": {}, "null": {},
}

// IsNA reports whether a raw cell counts as missing.
func IsNA(v string) bool {
	_, ok := naValues[strings.TrimSpace(v)]
	return ok
}

// Cell is one value of the table. Missing cells have Valid false until imputed.
type Cell struct {
	Raw   string
	Num   float64
	Valid bool
}

// Table is the loaded dataset, column-major by schema name.
type Table struct {
	Path    string
	Header  []string
	Columns map[string][]Cell
	Rows    int
}

// Load reads the CSV at path. It fails with errs.ErrDataNotFound when the file
// is absent and errs.ErrSchema when expected columns are missing or a numeric
// column holds a non-numeric value.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.ErrDataNotFound.Wrapf("%s", path)
		}
		return nil, err
	}
	defer f.Close()
	t, err := Read(f)
	if err != nil {
		return nil, err
	}
	t.Path = path
	return t, nil
}

// Read parses CSV content with a header row.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errs.ErrSchema.Wrapf("empty file, no header row")
		}
		return nil, errs.ErrSchema.Wrap(err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}
	var missing []string
	for _, col := range Schema {
		if _, ok := pos[col.Name]; !ok {
			missing = append(missing, col.Name)
		}
	}
	if len(missing) > 0 {
		return nil, errs.ErrSchema.Wrapf("missing columns %s", strings.Join(missing, ", "))
	}

	t := &Table{Header: header, Columns: make(map[string][]Cell, len(Schema))}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, errs.ErrSchema.Wrapf("line %d: %v", line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		for _, col := range Schema {
			raw := ""
			if i := pos[col.Name]; i < len(rec) {
				raw = strings.TrimSpace(rec[i])
			}
			cell := Cell{Raw: raw}
			if !IsNA(raw) {
				cell.Valid = true
				if col.Kind == Numeric {
					n, err := strconv.ParseFloat(raw, 64)
					if err != nil {
						return nil, errs.ErrSchema.Wrapf("line %d: column %s: invalid number %q", line, col.Name, raw)
					}
					cell.Num = n
				}
			} else {
				cell.Raw = ""
			}
			t.Columns[col.Name] = append(t.Columns[col.Name], cell)
		}
		t.Rows++
	}
	return t, nil
}

// FileDigest returns the hex SHA-256 of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errs.ErrDataNotFound.Wrapf("%s", path)
		}
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"loanquery/internal/domain"
)

// Sentence describes one record in plain English. The wording is stable so
// that rebuilding the index from the same file yields identical metadata.
func Sentence(r domain.Record) string {
	id := strings.TrimSpace(r.LoanID)
	if id == "" {
		id = "Unknown"
	}

	married := "not married"
	if strings.EqualFold(r.Married, "yes") {
		married = "married"
	}

	gender := strings.ToLower(strings.TrimSpace(r.Gender))
	if gender == "" {
		gender = "unknown gender"
	}

	dependents := strings.TrimSpace(r.Dependents)
	switch dependents {
	case "":
		dependents = "unknown number of"
	case "3+":
		dependents = "3 or more"
	}

	education := strings.ToLower(strings.TrimSpace(r.Education))
	if education == "" {
		education = "unknown education level"
	}

	selfEmployed := "not self-employed"
	if strings.EqualFold(r.SelfEmployed, "yes") {
		selfEmployed = "self-employed"
	}

	credit := "unknown credit history"
	if v, err := strconv.ParseFloat(strings.TrimSpace(r.CreditHistory), 64); err == nil {
		if v == 1 {
			credit = "has credit history"
		} else {
			credit = "no credit history"
		}
	}

	area := strings.ToLower(strings.TrimSpace(r.PropertyArea))
	if area == "" {
		area = "unknown"
	}

	status := "denied"
	if strings.EqualFold(strings.TrimSpace(r.LoanStatus), "y") {
		status = "approved"
	}

	coapplicant := "no co-applicant income"
	if r.CoapplicantIncome != 0 {
		coapplicant = "co-applicant income of " + formatNumber(r.CoapplicantIncome)
	}

	return fmt.Sprintf("Applicant %s is a %s %s %s who is %s with %s dependents and %s. "+
		"They applied for a loan of %s thousand with income of %s and %s for %d months term in a %s area. "+
		"The loan was %s.",
		id, married, gender, education, selfEmployed, dependents, credit,
		formatNumber(r.LoanAmount), formatNumber(r.ApplicantIncome), coapplicant,
		int(r.LoanAmountTerm), area, status)
}

// formatNumber prints whole numbers with a trailing ".0" (5849.0) and keeps
// the shortest exact form otherwise.
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v == math.Trunc(v) && !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

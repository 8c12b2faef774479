// Package interest computes total interest and installment amounts for a loan
// under a named pricing method.
package interest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/savannahcredit/saccoledger/pkg/models"
)

const (
	// Rates are converted from percentages at 4 decimal places so rounding
	// error does not accumulate before the final result.
	ratePrecision  = 4
	moneyPrecision = 2
)

var hundred = decimal.NewFromInt(100)

// Calculator prices a loan under one interest method. Selection happens once,
// at construction; an unknown method is rejected up front rather than falling
// back to a default that could misprice the loan.
type Calculator struct {
	method models.InterestMethod
}

// NewCalculator returns a calculator for the given method.
func NewCalculator(method models.InterestMethod) (Calculator, error) {
	switch method {
	case models.InterestPerMonth, models.InterestOnceTotal:
		return Calculator{method: method}, nil
	default:
		return Calculator{}, fmt.Errorf("%w: %q", models.ErrUnsupportedMethod, method)
	}
}

// TotalInterest computes the interest owed over the whole term. ratePercent is
// a percentage (10 means 10%). The result is rounded half-up to 2 decimals.
func (c Calculator) TotalInterest(principal, ratePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if termMonths <= 0 {
		return decimal.Zero, fmt.Errorf("%w: got %d", models.ErrInvalidTerm, termMonths)
	}

	rate := ratePercent.Div(hundred).Round(ratePrecision)

	switch c.method {
	case models.InterestPerMonth:
		// Flat monthly rate applied across the whole term.
		return principal.Mul(rate).Mul(decimal.NewFromInt(int64(termMonths))).Round(moneyPrecision), nil
	case models.InterestOnceTotal:
		// Single flat charge, independent of term length.
		return principal.Mul(rate).Round(moneyPrecision), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", models.ErrUnsupportedMethod, c.method)
	}
}

// Installment computes the level periodic amount (principal + totalInterest)
// spread across the term, rounded half-up to 2 decimals. The schedule
// generator reconciles the rounding drift into the final period.
func Installment(principal, totalInterest decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if termMonths <= 0 {
		return decimal.Zero, fmt.Errorf("%w: got %d", models.ErrInvalidTerm, termMonths)
	}
	return principal.Add(totalInterest).Div(decimal.NewFromInt(int64(termMonths))).Round(moneyPrecision), nil
}

// Package schedule builds the ordered installment sequence for a disbursed
// loan account.
package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savannahcredit/saccoledger/pkg/interest"
	"github.com/savannahcredit/saccoledger/pkg/models"
)

// Result carries the generated installments together with the totals the
// orchestrator needs for balance bookkeeping and ledger posting.
type Result struct {
	Installments      []*models.Installment
	TotalInterest     decimal.Decimal
	InstallmentAmount decimal.Decimal
}

// Generate computes the repayment schedule for a loan disbursed at
// disbursedAt. The caller persists the result as one atomic batch; nothing is
// written here.
//
// Each period gets an equal principal and interest share rounded to cents; the
// final period absorbs the rounding residual so the schedule sums exactly to
// the loan's principal and total interest.
func Generate(acct *models.LoanAccount, disbursedAt time.Time) (*Result, error) {
	if acct.TermMonths <= 0 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidTerm, acct.TermMonths)
	}
	if acct.Principal.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", models.ErrInvalidPrincipal, acct.Principal)
	}
	switch acct.Frequency {
	case models.FrequencyMonthly, models.FrequencyWeekly, models.FrequencyDaily:
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownFrequency, acct.Frequency)
	}

	calc, err := interest.NewCalculator(acct.InterestMethod)
	if err != nil {
		return nil, err
	}
	totalInterest, err := calc.TotalInterest(acct.Principal, acct.InterestRate, acct.TermMonths)
	if err != nil {
		return nil, err
	}
	installmentAmount, err := interest.Installment(acct.Principal, totalInterest, acct.TermMonths)
	if err != nil {
		return nil, err
	}

	term := decimal.NewFromInt(int64(acct.TermMonths))
	principalPerPeriod := acct.Principal.Div(term).Round(2)
	interestPerPeriod := totalInterest.Div(term).Round(2)

	now := time.Now()
	installments := make([]*models.Installment, 0, acct.TermMonths)
	for seq := 1; seq <= acct.TermMonths; seq++ {
		dueDate := dueDateFor(disbursedAt, acct.Frequency, seq)

		principalDue := principalPerPeriod
		interestDue := interestPerPeriod
		if seq == acct.TermMonths {
			// Residual cents land on the last period so the schedule
			// reconciles exactly.
			periodsBefore := decimal.NewFromInt(int64(acct.TermMonths - 1))
			principalDue = acct.Principal.Sub(principalPerPeriod.Mul(periodsBefore))
			interestDue = totalInterest.Sub(interestPerPeriod.Mul(periodsBefore))
		}

		installments = append(installments, &models.Installment{
			ID:               uuid.New(),
			LoanID:           acct.ID,
			Sequence:         seq,
			DueDate:          dueDate,
			CommencementDate: commencementFor(dueDate, acct.Frequency),
			PrincipalDue:     principalDue,
			InterestDue:      interestDue,
			PenaltyDue:       decimal.Zero,
			PrincipalPaid:    decimal.Zero,
			InterestPaid:     decimal.Zero,
			PenaltyPaid:      decimal.Zero,
			Status:           models.InstallmentPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	return &Result{
		Installments:      installments,
		TotalInterest:     totalInterest,
		InstallmentAmount: installmentAmount,
	}, nil
}

// dueDateFor steps forward from the disbursement date by seq periods.
func dueDateFor(disbursedAt time.Time, freq models.RepaymentFrequency, seq int) time.Time {
	switch freq {
	case models.FrequencyWeekly:
		return disbursedAt.AddDate(0, 0, 7*seq)
	case models.FrequencyDaily:
		return disbursedAt.AddDate(0, 0, seq)
	default:
		return disbursedAt.AddDate(0, seq, 0)
	}
}

// commencementFor derives the period start by stepping back one period from
// the due date, not by chaining forward from the previous installment.
func commencementFor(dueDate time.Time, freq models.RepaymentFrequency) time.Time {
	switch freq {
	case models.FrequencyWeekly:
		return dueDate.AddDate(0, 0, -7)
	case models.FrequencyDaily:
		return dueDate.AddDate(0, 0, -1)
	default:
		return dueDate.AddDate(0, -1, 0)
	}
}

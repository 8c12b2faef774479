// Package allocate applies a payment amount against a loan's outstanding
// installments under the fixed penalty, interest, principal waterfall.
package allocate

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/savannahcredit/saccoledger/pkg/models"
)

// Outcome labels how a payment ended up applied.
type Outcome string

const (
	OutcomeFullyApplied Outcome = "FULLY_APPLIED"
	OutcomeWithSuspense Outcome = "APPLIED_WITH_SUSPENSE"
	OutcomeUnmatched    Outcome = "UNMATCHED"
)

// Line is the portion of a payment applied to one installment.
type Line struct {
	Installment      *models.Installment `json:"-"`
	InstallmentID    string              `json:"installment_id"`
	Sequence         int                 `json:"sequence"`
	PenaltyApplied   decimal.Decimal     `json:"penalty_applied"`
	InterestApplied  decimal.Decimal     `json:"interest_applied"`
	PrincipalApplied decimal.Decimal     `json:"principal_applied"`
}

// Total returns the sum applied to this installment across all buckets.
func (l Line) Total() decimal.Decimal {
	return l.PenaltyApplied.Add(l.InterestApplied).Add(l.PrincipalApplied)
}

// Result is the full account of one payment application.
type Result struct {
	Reference      string                `json:"reference"`
	Outcome        Outcome               `json:"outcome"`
	Lines          []Line                `json:"lines"`
	Suspense       decimal.Decimal       `json:"suspense"`
	SuspenseReason models.SuspenseReason `json:"suspense_reason,omitempty"`
	LoanCompleted  bool                  `json:"loan_completed"`
	AlreadyApplied bool                  `json:"already_applied"` // duplicate reference, prior result returned
}

// PenaltyApplied sums the penalty bucket across all lines.
func (r *Result) PenaltyApplied() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.PenaltyApplied)
	}
	return total
}

// InterestApplied sums the interest bucket across all lines.
func (r *Result) InterestApplied() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.InterestApplied)
	}
	return total
}

// PrincipalApplied sums the principal bucket across all lines.
func (r *Result) PrincipalApplied() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.PrincipalApplied)
	}
	return total
}

// Waterfall walks the open installments oldest first and drains the payment
// amount into the penalty, then interest, then principal bucket of each. The
// installments' paid fields and statuses are mutated in place; whatever the
// schedule cannot absorb comes back as the leftover.
//
// Persistence and idempotency live with the caller; this is pure computation.
func Waterfall(installments []*models.Installment, amount decimal.Decimal) ([]Line, decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, fmt.Errorf("%w: got %s", models.ErrInvalidAmount, amount)
	}

	open := make([]*models.Installment, 0, len(installments))
	for _, inst := range installments {
		if inst.Open() {
			open = append(open, inst)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Sequence < open[j].Sequence })

	remaining := amount
	var lines []Line
	for _, inst := range open {
		if inst.FullyPaid() {
			// Nothing left due but never flipped, e.g. a zero-due period from
			// amortizing a principal smaller than the term in cents.
			inst.Status = models.InstallmentPaid
			continue
		}

		line := Line{
			Installment:   inst,
			InstallmentID: inst.ID.String(),
			Sequence:      inst.Sequence,
		}

		line.PenaltyApplied, remaining = drain(inst.PenaltyDue.Sub(inst.PenaltyPaid), remaining)
		line.InterestApplied, remaining = drain(inst.InterestDue.Sub(inst.InterestPaid), remaining)
		line.PrincipalApplied, remaining = drain(inst.PrincipalDue.Sub(inst.PrincipalPaid), remaining)

		if line.Total().IsZero() {
			continue
		}

		inst.PenaltyPaid = inst.PenaltyPaid.Add(line.PenaltyApplied)
		inst.InterestPaid = inst.InterestPaid.Add(line.InterestApplied)
		inst.PrincipalPaid = inst.PrincipalPaid.Add(line.PrincipalApplied)

		if inst.FullyPaid() {
			inst.Status = models.InstallmentPaid
		} else if inst.Status == models.InstallmentPending {
			// Overdue installments stay OVERDUE until settled in full.
			inst.Status = models.InstallmentPartiallyPaid
		}

		lines = append(lines, line)
	}

	return lines, remaining, nil
}

// drain takes min(due, available) out of available.
func drain(due, available decimal.Decimal) (applied, left decimal.Decimal) {
	if due.LessThanOrEqual(decimal.Zero) || available.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, available
	}
	applied = decimal.Min(due, available)
	return applied, available.Sub(applied)
}

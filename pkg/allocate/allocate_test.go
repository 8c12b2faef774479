package allocate

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savannahcredit/saccoledger/pkg/models"
)

func inst(seq int, principal, interest, penalty string) *models.Installment {
	return &models.Installment{
		ID:            uuid.New(),
		LoanID:        uuid.New(),
		Sequence:      seq,
		DueDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, seq, 0),
		PrincipalDue:  decimal.RequireFromString(principal),
		InterestDue:   decimal.RequireFromString(interest),
		PenaltyDue:    decimal.RequireFromString(penalty),
		PrincipalPaid: decimal.Zero,
		InterestPaid:  decimal.Zero,
		PenaltyPaid:   decimal.Zero,
		Status:        models.InstallmentPending,
	}
}

func TestWaterfall_InterestBeforePrincipal(t *testing.T) {
	// One pending installment: interest 500, principal 2000, penalty 0.
	// A payment of 2200 settles the interest and leaves principal short.
	i := inst(1, "2000", "500", "0")

	lines, leftover, err := Waterfall([]*models.Installment{i}, decimal.NewFromInt(2200))
	require.NoError(t, err)
	require.Len(t, lines, 1)

	assert.True(t, lines[0].InterestApplied.Equal(decimal.NewFromInt(500)))
	assert.True(t, lines[0].PrincipalApplied.Equal(decimal.NewFromInt(1700)))
	assert.True(t, lines[0].PenaltyApplied.IsZero())
	assert.True(t, leftover.IsZero())

	assert.Equal(t, models.InstallmentPartiallyPaid, i.Status)
	assert.True(t, i.InterestPaid.Equal(decimal.NewFromInt(500)))
	assert.True(t, i.PrincipalPaid.Equal(decimal.NewFromInt(1700)))
}

func TestWaterfall_PenaltyFirst(t *testing.T) {
	// A payment smaller than penalty+interest never touches principal.
	i := inst(1, "1000", "200", "150")

	lines, leftover, err := Waterfall([]*models.Installment{i}, decimal.NewFromInt(300))
	require.NoError(t, err)
	require.Len(t, lines, 1)

	assert.True(t, lines[0].PenaltyApplied.Equal(decimal.NewFromInt(150)))
	assert.True(t, lines[0].InterestApplied.Equal(decimal.NewFromInt(150)))
	assert.True(t, lines[0].PrincipalApplied.IsZero())
	assert.True(t, leftover.IsZero())
	assert.True(t, i.PrincipalDue.Sub(i.PrincipalPaid).Equal(decimal.NewFromInt(1000)))
}

func TestWaterfall_OldestFirst(t *testing.T) {
	first := inst(1, "100", "10", "0")
	second := inst(2, "100", "10", "0")

	// Enough to clear the first installment and dent the second.
	lines, leftover, err := Waterfall([]*models.Installment{second, first}, decimal.NewFromInt(150))
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, 1, lines[0].Sequence)
	assert.Equal(t, 2, lines[1].Sequence)
	assert.Equal(t, models.InstallmentPaid, first.Status)
	assert.Equal(t, models.InstallmentPartiallyPaid, second.Status)
	assert.True(t, lines[1].InterestApplied.Equal(decimal.NewFromInt(10)))
	assert.True(t, lines[1].PrincipalApplied.Equal(decimal.NewFromInt(30)))
	assert.True(t, leftover.IsZero())
}

func TestWaterfall_Overpayment(t *testing.T) {
	i := inst(1, "500", "50", "0")

	lines, leftover, err := Waterfall([]*models.Installment{i}, decimal.NewFromInt(700))
	require.NoError(t, err)
	require.Len(t, lines, 1)

	assert.Equal(t, models.InstallmentPaid, i.Status)
	assert.True(t, leftover.Equal(decimal.NewFromInt(150)), "leftover %s", leftover)
}

func TestWaterfall_SkipsPaidInstallments(t *testing.T) {
	paid := inst(1, "100", "10", "0")
	paid.PrincipalPaid = paid.PrincipalDue
	paid.InterestPaid = paid.InterestDue
	paid.Status = models.InstallmentPaid

	next := inst(2, "100", "10", "0")

	lines, leftover, err := Waterfall([]*models.Installment{paid, next}, decimal.NewFromInt(50))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Sequence)
	assert.True(t, leftover.IsZero())
}

func TestWaterfall_PartiallyPaidResumes(t *testing.T) {
	i := inst(1, "1000", "100", "0")
	i.InterestPaid = decimal.NewFromInt(60)
	i.Status = models.InstallmentPartiallyPaid

	lines, _, err := Waterfall([]*models.Installment{i}, decimal.NewFromInt(40))
	require.NoError(t, err)
	require.Len(t, lines, 1)

	// Only the unpaid remainder of the interest bucket is drained.
	assert.True(t, lines[0].InterestApplied.Equal(decimal.NewFromInt(40)))
	assert.True(t, i.InterestPaid.Equal(decimal.NewFromInt(100)))
	assert.True(t, lines[0].PrincipalApplied.IsZero())
}

func TestWaterfall_OverdueStaysOverdueUntilSettled(t *testing.T) {
	i := inst(1, "1000", "100", "50")
	i.Status = models.InstallmentOverdue

	_, _, err := Waterfall([]*models.Installment{i}, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, models.InstallmentOverdue, i.Status)

	_, _, err = Waterfall([]*models.Installment{i}, decimal.NewFromInt(1050))
	require.NoError(t, err)
	assert.Equal(t, models.InstallmentPaid, i.Status)
}

func TestWaterfall_ZeroDueInstallmentsSettle(t *testing.T) {
	// A 0.05 principal amortized over 12 periods yields eleven 0.00-due
	// periods and one 0.05 period. The zero-due periods carry no allocation
	// but must still end PAID so the loan can complete.
	var installments []*models.Installment
	for seq := 1; seq <= 11; seq++ {
		installments = append(installments, inst(seq, "0.00", "0.00", "0"))
	}
	installments = append(installments, inst(12, "0.05", "0.00", "0"))

	lines, leftover, err := Waterfall(installments, decimal.NewFromInt(1))
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, 12, lines[0].Sequence)
	assert.True(t, lines[0].PrincipalApplied.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, leftover.Equal(decimal.RequireFromString("0.95")), "leftover %s", leftover)

	for _, i := range installments {
		assert.Equal(t, models.InstallmentPaid, i.Status, "seq %d", i.Sequence)
	}
}

func TestWaterfall_InvalidAmount(t *testing.T) {
	i := inst(1, "100", "10", "0")

	_, _, err := Waterfall([]*models.Installment{i}, decimal.Zero)
	assert.True(t, errors.Is(err, models.ErrInvalidAmount))

	_, _, err = Waterfall([]*models.Installment{i}, decimal.NewFromInt(-5))
	assert.True(t, errors.Is(err, models.ErrInvalidAmount))
}

func TestWaterfall_NeverOverpaysComponent(t *testing.T) {
	i := inst(1, "33.34", "16.67", "5.01")

	_, leftover, err := Waterfall([]*models.Installment{i}, decimal.NewFromInt(100))
	require.NoError(t, err)

	assert.True(t, i.PenaltyPaid.Equal(i.PenaltyDue))
	assert.True(t, i.InterestPaid.Equal(i.InterestDue))
	assert.True(t, i.PrincipalPaid.Equal(i.PrincipalDue))
	assert.True(t, leftover.Equal(decimal.RequireFromString("44.98")), "leftover %s", leftover)
}

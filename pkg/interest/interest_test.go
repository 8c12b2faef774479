package interest

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savannahcredit/saccoledger/pkg/models"
)

func TestTotalInterest(t *testing.T) {
	tests := []struct {
		name      string
		method    models.InterestMethod
		principal string
		rate      string
		term      int
		want      string
	}{
		{"per month standard", models.InterestPerMonth, "100000", "10", 12, "120000"},
		{"once total standard", models.InterestOnceTotal, "100000", "10", 12, "10000"},
		{"once total ignores term", models.InterestOnceTotal, "100000", "10", 36, "10000"},
		{"per month single period", models.InterestPerMonth, "5000", "5", 1, "250"},
		{"per month fractional rate", models.InterestPerMonth, "2500", "2.5", 6, "375"},
		{"rounding to cents", models.InterestOnceTotal, "333.33", "7.5", 3, "25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, err := NewCalculator(tt.method)
			require.NoError(t, err)

			got, err := calc.TotalInterest(decimal.RequireFromString(tt.principal), decimal.RequireFromString(tt.rate), tt.term)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "want %s, got %s", tt.want, got)
		})
	}
}

func TestTotalInterest_InvalidTerm(t *testing.T) {
	calc, err := NewCalculator(models.InterestPerMonth)
	require.NoError(t, err)

	for _, term := range []int{0, -1, -12} {
		_, err := calc.TotalInterest(decimal.NewFromInt(1000), decimal.NewFromInt(10), term)
		assert.True(t, errors.Is(err, models.ErrInvalidTerm), "term %d should be rejected", term)
	}
}

func TestNewCalculator_UnsupportedMethod(t *testing.T) {
	_, err := NewCalculator(models.InterestMethod("COMPOUND_DAILY"))
	assert.True(t, errors.Is(err, models.ErrUnsupportedMethod))

	_, err = NewCalculator(models.InterestMethod(""))
	assert.True(t, errors.Is(err, models.ErrUnsupportedMethod))
}

func TestInstallment(t *testing.T) {
	// 220000 / 12 = 18333.333... rounds half-up to 18333.33
	got, err := Installment(decimal.NewFromInt(100000), decimal.NewFromInt(120000), 12)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("18333.33")), "got %s", got)

	// 110000 / 12 = 9166.666... rounds half-up to 9166.67
	got, err = Installment(decimal.NewFromInt(100000), decimal.NewFromInt(10000), 12)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("9166.67")), "got %s", got)

	_, err = Installment(decimal.NewFromInt(1000), decimal.NewFromInt(100), 0)
	assert.True(t, errors.Is(err, models.ErrInvalidTerm))
}

func TestRateConversionPrecision(t *testing.T) {
	// 12.345% converts at 4 decimals (0.1235 after half-up), then rounds only
	// at the final result.
	calc, err := NewCalculator(models.InterestOnceTotal)
	require.NoError(t, err)

	got, err := calc.TotalInterest(decimal.NewFromInt(10000), decimal.RequireFromString("12.345"), 12)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("1235")), "got %s", got)
}

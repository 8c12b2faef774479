package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savannahcredit/saccoledger/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testLoanAccount() *models.LoanAccount {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.LoanAccount{
		ID:                   uuid.New(),
		CustomerKey:          "cust_test",
		Principal:            decimal.RequireFromString("2000.00"),
		InterestRate:         decimal.RequireFromString("10"),
		TermMonths:           6,
		InterestMethod:       models.InterestPerMonth,
		Frequency:            models.FrequencyMonthly,
		Status:               models.LoanPending,
		OutstandingPrincipal: decimal.Zero,
		OutstandingInterest:  decimal.Zero,
		OutstandingPenalty:   decimal.Zero,
		TotalPaid:            decimal.Zero,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestLoanAccountRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := testLoanAccount()

	err := s.WithinTx(ctx, func(tx Tx) error {
		return tx.CreateLoanAccount(acct)
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.GetLoanAccount(acct.ID)
		require.NoError(t, err)
		assert.Equal(t, acct.CustomerKey, got.CustomerKey)
		assert.True(t, got.Principal.Equal(acct.Principal))
		// Decimals survive the TEXT columns without drifting.
		assert.Equal(t, "2000.00", got.Principal.StringFixed(2))
		assert.Equal(t, models.LoanPending, got.Status)
		assert.Nil(t, got.DisbursedAt)
		return nil
	})
	require.NoError(t, err)
}

func TestGetLoanAccount_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.WithinTx(context.Background(), func(tx Tx) error {
		_, err := tx.GetLoanAccount(uuid.New())
		return err
	})
	assert.True(t, errors.Is(err, models.ErrLoanNotFound))
}

func TestUpdateLoanAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := testLoanAccount()

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		return tx.CreateLoanAccount(acct)
	}))

	when := time.Now().UTC().Truncate(time.Second)
	err := s.WithinTx(ctx, func(tx Tx) error {
		acct.Status = models.LoanActive
		acct.OutstandingPrincipal = acct.Principal
		acct.DisbursedAt = &when
		return tx.UpdateLoanAccount(acct)
	})
	require.NoError(t, err)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.GetLoanAccount(acct.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LoanActive, got.Status)
		assert.True(t, got.OutstandingPrincipal.Equal(acct.Principal))
		require.NotNil(t, got.DisbursedAt)
		return nil
	}))

	// Updating a row that does not exist is reported.
	stranger := testLoanAccount()
	err = s.WithinTx(ctx, func(tx Tx) error {
		return tx.UpdateLoanAccount(stranger)
	})
	assert.True(t, errors.Is(err, models.ErrLoanNotFound))
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := testLoanAccount()

	sentinel := errors.New("boom")
	err := s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateLoanAccount(acct); err != nil {
			return err
		}
		return sentinel
	})
	assert.True(t, errors.Is(err, sentinel))

	err = s.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.GetLoanAccount(acct.ID)
		return err
	})
	assert.True(t, errors.Is(err, models.ErrLoanNotFound))
}

func TestWithinTx_ConcurrentWriters(t *testing.T) {
	// The store takes the writer lock at BEGIN even when the DSN carries no
	// query parameters, so simultaneous write transactions queue up instead
	// of failing mid-transaction on lock upgrade.
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.WithinTx(ctx, func(tx Tx) error {
				return tx.CreateLoanAccount(testLoanAccount())
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		accts, err := tx.ListLoanAccounts()
		require.NoError(t, err)
		assert.Len(t, accts, 8)
		return nil
	}))
}

func TestInstallments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := testLoanAccount()
	now := time.Now().UTC().Truncate(time.Second)

	installments := make([]*models.Installment, 0, 3)
	for i := 3; i >= 1; i-- { // inserted out of order on purpose
		installments = append(installments, &models.Installment{
			ID:               uuid.New(),
			LoanID:           acct.ID,
			Sequence:         i,
			DueDate:          now.AddDate(0, i, 0),
			CommencementDate: now.AddDate(0, i-1, 0),
			PrincipalDue:     decimal.RequireFromString("333.33"),
			InterestDue:      decimal.RequireFromString("16.67"),
			PenaltyDue:       decimal.Zero,
			PrincipalPaid:    decimal.Zero,
			InterestPaid:     decimal.Zero,
			PenaltyPaid:      decimal.Zero,
			Status:           models.InstallmentPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateLoanAccount(acct); err != nil {
			return err
		}
		return tx.CreateInstallments(installments)
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.GetInstallments(acct.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, inst := range got {
			assert.Equal(t, i+1, inst.Sequence)
		}
		return nil
	}))

	// A duplicate (loan_id, seq) pair violates the schedule's uniqueness.
	dup := *installments[0]
	dup.ID = uuid.New()
	err := s.WithinTx(ctx, func(tx Tx) error {
		return tx.CreateInstallments([]*models.Installment{&dup})
	})
	assert.Error(t, err)
}

func TestMarkInstallmentsOverdue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := testLoanAccount()
	now := time.Now().UTC().Truncate(time.Second)

	past := &models.Installment{
		ID: uuid.New(), LoanID: acct.ID, Sequence: 1,
		DueDate: now.AddDate(0, -1, 0), CommencementDate: now.AddDate(0, -2, 0),
		PrincipalDue: decimal.NewFromInt(100), InterestDue: decimal.NewFromInt(10), PenaltyDue: decimal.Zero,
		PrincipalPaid: decimal.Zero, InterestPaid: decimal.Zero, PenaltyPaid: decimal.Zero,
		Status: models.InstallmentPending, CreatedAt: now, UpdatedAt: now,
	}
	future := &models.Installment{
		ID: uuid.New(), LoanID: acct.ID, Sequence: 2,
		DueDate: now.AddDate(0, 1, 0), CommencementDate: now,
		PrincipalDue: decimal.NewFromInt(100), InterestDue: decimal.NewFromInt(10), PenaltyDue: decimal.Zero,
		PrincipalPaid: decimal.Zero, InterestPaid: decimal.Zero, PenaltyPaid: decimal.Zero,
		Status: models.InstallmentPending, CreatedAt: now, UpdatedAt: now,
	}

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateLoanAccount(acct); err != nil {
			return err
		}
		return tx.CreateInstallments([]*models.Installment{past, future})
	}))

	var n int64
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.MarkInstallmentsOverdue(now)
		return err
	}))
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.GetInstallments(acct.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InstallmentOverdue, got[0].Status)
		assert.Equal(t, models.InstallmentPending, got[1].Status)
		return nil
	}))
}

func TestPaymentReferenceUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := testLoanAccount()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		return tx.CreateLoanAccount(acct)
	}))

	payment := &models.Payment{
		ID: uuid.New(), Reference: "REF-42", LoanID: acct.ID,
		Amount: decimal.NewFromInt(100), ReceivedAt: now, Applied: true, CreatedAt: now,
	}
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		return tx.CreatePayment(payment)
	}))

	// A second row with the same reference must be refused by the schema, not
	// just by application code.
	clone := *payment
	clone.ID = uuid.New()
	err := s.WithinTx(ctx, func(tx Tx) error {
		return tx.CreatePayment(&clone)
	})
	assert.Error(t, err)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.GetPaymentByReference("REF-42")
		require.NoError(t, err)
		assert.Equal(t, payment.ID, got.ID)
		assert.True(t, got.Amount.Equal(payment.Amount))

		_, err = tx.GetPaymentByReference("REF-MISSING")
		assert.True(t, errors.Is(err, models.ErrPaymentNotFound))
		return nil
	}))
}

func TestSuspenseNullableLoan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := testLoanAccount()
	now := time.Now().UTC().Truncate(time.Second)

	payment := &models.Payment{
		ID: uuid.New(), Reference: "REF-SUSP", LoanID: acct.ID,
		Amount: decimal.NewFromInt(50), ReceivedAt: now, Applied: true, CreatedAt: now,
	}
	susp := &models.SuspenseAmount{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		LoanID:    nil, // not attributable to any loan
		Amount:    decimal.NewFromInt(50),
		Reason:    models.SuspenseUnmatched,
		CreatedAt: now,
	}

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateLoanAccount(acct); err != nil {
			return err
		}
		if err := tx.CreatePayment(payment); err != nil {
			return err
		}
		return tx.CreateSuspense(susp)
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.GetSuspense(susp.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LoanID)
		assert.False(t, got.Resolved)

		byPayment, err := tx.GetSuspenseByPayment(payment.ID)
		require.NoError(t, err)
		assert.Equal(t, susp.ID, byPayment.ID)
		return nil
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.GetSuspense(susp.ID)
		require.NoError(t, err)
		resolvedAt := time.Now().UTC().Truncate(time.Second)
		got.Amount = decimal.Zero
		got.Resolved = true
		got.ResolvedAt = &resolvedAt
		return tx.UpdateSuspense(got)
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.GetSuspense(susp.ID)
		require.NoError(t, err)
		assert.True(t, got.Resolved)
		assert.True(t, got.Amount.IsZero())
		require.NotNil(t, got.ResolvedAt)
		return nil
	}))
}

func TestJournalSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var first, second int64
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		var err error
		if first, err = tx.NextJournalNumber(); err != nil {
			return err
		}
		second, err = tx.NextJournalNumber()
		return err
	}))
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)

	// A rolled-back transaction does not consume numbers.
	sentinel := errors.New("boom")
	_ = s.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.NextJournalNumber(); err != nil {
			return err
		}
		return sentinel
	})

	var third int64
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		var err error
		third, err = tx.NextJournalNumber()
		return err
	}))
	assert.Equal(t, int64(3), third)
}

func TestLedgerAppendAndBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day1 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Second)

	records := []*models.GeneralLedgerRecord{
		{AccountCode: "cash", JournalNumber: "JRN000001", TransactionDate: day1, Debit: decimal.NewFromInt(500), Credit: decimal.Zero, CreatedAt: now},
		{AccountCode: "cash", JournalNumber: "JRN000002", TransactionDate: day2, Debit: decimal.Zero, Credit: decimal.RequireFromString("123.45"), CreatedAt: now},
		{AccountCode: "interest-income", JournalNumber: "JRN000002", TransactionDate: day2, Debit: decimal.Zero, Credit: decimal.NewFromInt(50), CreatedAt: now},
	}

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		return tx.AppendLedgerRecords(records)
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		// As-of before any activity.
		balance, err := tx.AccountBalance("cash", day1.AddDate(0, 0, -1))
		require.NoError(t, err)
		assert.True(t, balance.IsZero())

		// As-of between the two postings.
		balance, err = tx.AccountBalance("cash", day1)
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(500)))

		// Full history.
		balance, err = tx.AccountBalance("cash", day2)
		require.NoError(t, err)
		assert.Equal(t, "376.55", balance.StringFixed(2))

		// Other accounts are untouched by cash activity.
		balance, err = tx.AccountBalance("interest-income", day2)
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(-50)))
		return nil
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.LedgerRecords("cash")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Less(t, got[0].Seq, got[1].Seq)
		assert.Equal(t, "JRN000001", got[0].JournalNumber)
		return nil
	}))
}

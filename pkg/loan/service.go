// Package loan orchestrates the loan accounting core: schedule generation at
// disbursement, payment allocation, and the ledger postings that accompany
// every money movement.
package loan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/savannahcredit/saccoledger/pkg/allocate"
	"github.com/savannahcredit/saccoledger/pkg/interest"
	"github.com/savannahcredit/saccoledger/pkg/ledger"
	"github.com/savannahcredit/saccoledger/pkg/models"
	"github.com/savannahcredit/saccoledger/pkg/schedule"
	"github.com/savannahcredit/saccoledger/pkg/store"
)

// Service owns LoanAccount state. All mutation of one loan is serialized
// through a per-account lock, and each operation's business writes and ledger
// postings share a single database transaction.
type Service struct {
	storage store.Storage
	poster  *ledger.Poster
	log     *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewService creates a Service with a given Storage and ledger Poster.
func NewService(s store.Storage, p *ledger.Poster, log *zap.Logger) *Service {
	return &Service{
		storage: s,
		poster:  p,
		log:     log,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockAccount serializes mutations of one loan account. The returned func
// releases the lock.
func (s *Service) lockAccount(id uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// CreateLoan registers a new loan account in PENDING status. Nothing is
// scheduled or posted until disbursement.
func (s *Service) CreateLoan(ctx context.Context, customerKey string, principal, ratePercent decimal.Decimal, termMonths int, method models.InterestMethod, freq models.RepaymentFrequency) (*models.LoanAccount, error) {
	if principal.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", models.ErrInvalidPrincipal, principal)
	}
	if termMonths <= 0 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidTerm, termMonths)
	}
	if _, err := interest.NewCalculator(method); err != nil {
		return nil, err
	}
	switch freq {
	case models.FrequencyMonthly, models.FrequencyWeekly, models.FrequencyDaily:
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownFrequency, freq)
	}

	now := time.Now()
	acct := &models.LoanAccount{
		ID:                   uuid.New(),
		CustomerKey:          customerKey,
		Principal:            principal,
		InterestRate:         ratePercent,
		TermMonths:           termMonths,
		InterestMethod:       method,
		Frequency:            freq,
		Status:               models.LoanPending,
		OutstandingPrincipal: decimal.Zero,
		OutstandingInterest:  decimal.Zero,
		OutstandingPenalty:   decimal.Zero,
		TotalPaid:            decimal.Zero,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateLoanAccount(acct)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store loan account: %w", err)
	}

	s.log.Info("loan account created",
		zap.String("loan_id", acct.ID.String()),
		zap.String("customer_key", customerKey),
		zap.String("principal", principal.StringFixed(2)))
	return acct, nil
}

// Disburse activates a PENDING loan: the repayment schedule is generated and
// written as one batch, the outstanding balances are set, and a DISBURSEMENT
// journal entry is posted, all in one transaction. If anything fails the loan
// stays PENDING with no schedule rows.
func (s *Service) Disburse(ctx context.Context, loanID uuid.UUID, when time.Time) (*models.LoanAccount, []*models.Installment, error) {
	defer s.lockAccount(loanID)()

	var acct *models.LoanAccount
	var installments []*models.Installment
	var draft *models.JournalEntry

	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		acct, err = tx.GetLoanAccount(loanID)
		if err != nil {
			return err
		}
		if acct.Status != models.LoanPending {
			return fmt.Errorf("%w: status is %s", models.ErrLoanNotPending, acct.Status)
		}

		res, err := schedule.Generate(acct, when)
		if err != nil {
			return err
		}
		if err := tx.CreateInstallments(res.Installments); err != nil {
			return err
		}
		installments = res.Installments

		acct.Status = models.LoanActive
		acct.OutstandingPrincipal = acct.Principal
		acct.OutstandingInterest = res.TotalInterest
		acct.OutstandingPenalty = decimal.Zero
		acct.DisbursedAt = &when
		acct.UpdatedAt = time.Now()
		if err := tx.UpdateLoanAccount(acct); err != nil {
			return err
		}

		_, err = s.post(tx, &draft, when, models.JournalDisbursement,
			"disbursement of loan "+loanID.String(),
			[]ledger.LineInput{
				{AccountCode: AccountLoansReceivable, Debit: acct.Principal, Description: "loan principal disbursed"},
				{AccountCode: AccountCash, Credit: acct.Principal, Description: "loan principal disbursed"},
			})
		return err
	})
	s.retainDraft(ctx, draft)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("loan disbursed",
		zap.String("loan_id", loanID.String()),
		zap.Int("installments", len(installments)))
	return acct, installments, nil
}

// ApplyPayment applies one incoming payment against a loan under the
// penalty-interest-principal waterfall. The reference is the idempotency key:
// a reference seen before returns the original allocation result without any
// further mutation. Overpayment and unmatched amounts are recorded as
// suspense, not errors.
func (s *Service) ApplyPayment(ctx context.Context, reference string, loanID uuid.UUID, amount decimal.Decimal, receivedAt time.Time) (*allocate.Result, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", models.ErrInvalidAmount, amount)
	}

	defer s.lockAccount(loanID)()

	var result *allocate.Result
	var draft *models.JournalEntry

	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		// The duplicate check lives inside the transaction so two concurrent
		// deliveries of the same reference cannot both allocate.
		existing, err := tx.GetPaymentByReference(reference)
		if err == nil {
			result, err = s.replay(tx, existing)
			return err
		}
		if !errors.Is(err, models.ErrPaymentNotFound) {
			return err
		}

		acct, err := tx.GetLoanAccount(loanID)
		if err != nil {
			return err
		}
		installments, err := tx.GetInstallments(loanID)
		if err != nil {
			return err
		}

		payment := &models.Payment{
			ID:         uuid.New(),
			Reference:  reference,
			LoanID:     loanID,
			Amount:     amount,
			ReceivedAt: receivedAt,
			Applied:    true,
			CreatedAt:  time.Now(),
		}

		hasOpen := false
		for _, inst := range installments {
			if inst.Open() {
				hasOpen = true
				break
			}
		}
		closed := acct.Status == models.LoanCompleted || acct.Status == models.LoanWrittenOff

		if closed || !hasOpen {
			result, err = s.applyUnmatched(tx, &draft, acct, payment)
			return err
		}

		statusBefore := snapshotStatuses(installments)
		lines, leftover, err := allocate.Waterfall(installments, amount)
		if err != nil {
			return err
		}

		if err := tx.CreatePayment(payment); err != nil {
			return err
		}

		allocLines := make([]*models.AllocationLine, 0, len(lines))
		for _, line := range lines {
			allocLines = append(allocLines, &models.AllocationLine{
				ID:            uuid.New(),
				PaymentID:     payment.ID,
				InstallmentID: line.Installment.ID,
				Sequence:      line.Sequence,
				PenaltyPaid:   line.PenaltyApplied,
				InterestPaid:  line.InterestApplied,
				PrincipalPaid: line.PrincipalApplied,
			})
		}
		if err := tx.CreateAllocationLines(allocLines); err != nil {
			return err
		}
		if err := touchAllocated(tx, installments, statusBefore, lines); err != nil {
			return err
		}

		result = &allocate.Result{
			Reference: reference,
			Outcome:   allocate.OutcomeFullyApplied,
			Lines:     lines,
			Suspense:  leftover,
		}

		applied := amount.Sub(leftover)
		acct.OutstandingPenalty = acct.OutstandingPenalty.Sub(result.PenaltyApplied())
		acct.OutstandingInterest = acct.OutstandingInterest.Sub(result.InterestApplied())
		acct.OutstandingPrincipal = acct.OutstandingPrincipal.Sub(result.PrincipalApplied())
		acct.TotalPaid = acct.TotalPaid.Add(applied)

		if allSettled(installments) {
			// Completion is a side effect of allocation and commits with it.
			acct.Status = models.LoanCompleted
			result.LoanCompleted = true
		}
		acct.UpdatedAt = time.Now()
		if err := tx.UpdateLoanAccount(acct); err != nil {
			return err
		}

		if leftover.GreaterThan(decimal.Zero) {
			result.Outcome = allocate.OutcomeWithSuspense
			result.SuspenseReason = models.SuspenseOverpayment
			if err := tx.CreateSuspense(&models.SuspenseAmount{
				ID:        uuid.New(),
				PaymentID: payment.ID,
				LoanID:    &loanID,
				Amount:    leftover,
				Reason:    models.SuspenseOverpayment,
				CreatedAt: time.Now(),
			}); err != nil {
				return err
			}
		}

		_, err = s.post(tx, &draft, receivedAt, models.JournalRepayment,
			"repayment "+reference,
			repaymentLines(amount, result.PenaltyApplied(), result.InterestApplied(), result.PrincipalApplied(), leftover))
		return err
	})
	s.retainDraft(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.log.Info("payment applied",
		zap.String("reference", reference),
		zap.String("loan_id", loanID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("outcome", string(result.Outcome)),
		zap.Bool("already_applied", result.AlreadyApplied))
	return result, nil
}

// applyUnmatched records a payment against a loan with nothing outstanding.
// The money is held in suspense rather than rejected.
func (s *Service) applyUnmatched(tx store.Tx, draft **models.JournalEntry, acct *models.LoanAccount, payment *models.Payment) (*allocate.Result, error) {
	if err := tx.CreatePayment(payment); err != nil {
		return nil, err
	}
	loanID := acct.ID
	if err := tx.CreateSuspense(&models.SuspenseAmount{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		LoanID:    &loanID,
		Amount:    payment.Amount,
		Reason:    models.SuspenseUnmatched,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	_, err := s.post(tx, draft, payment.ReceivedAt, models.JournalRepayment,
		"unmatched payment "+payment.Reference,
		[]ledger.LineInput{
			{AccountCode: AccountCash, Debit: payment.Amount, Description: "unmatched payment received"},
			{AccountCode: AccountPaymentSuspense, Credit: payment.Amount, Description: "held in suspense"},
		})
	if err != nil {
		return nil, err
	}

	return &allocate.Result{
		Reference:      payment.Reference,
		Outcome:        allocate.OutcomeUnmatched,
		Suspense:       payment.Amount,
		SuspenseReason: models.SuspenseUnmatched,
	}, nil
}

// replay reconstructs the original result for a payment reference that has
// already been applied.
func (s *Service) replay(tx store.Tx, payment *models.Payment) (*allocate.Result, error) {
	allocLines, err := tx.GetAllocationLines(payment.ID)
	if err != nil {
		return nil, err
	}

	result := &allocate.Result{
		Reference:      payment.Reference,
		Outcome:        allocate.OutcomeFullyApplied,
		Suspense:       decimal.Zero,
		AlreadyApplied: true,
	}
	for _, line := range allocLines {
		result.Lines = append(result.Lines, allocate.Line{
			InstallmentID:    line.InstallmentID.String(),
			Sequence:         line.Sequence,
			PenaltyApplied:   line.PenaltyPaid,
			InterestApplied:  line.InterestPaid,
			PrincipalApplied: line.PrincipalPaid,
		})
	}

	susp, err := tx.GetSuspenseByPayment(payment.ID)
	switch {
	case err == nil:
		result.Suspense = susp.Amount
		result.SuspenseReason = susp.Reason
		if susp.Reason == models.SuspenseUnmatched {
			result.Outcome = allocate.OutcomeUnmatched
		} else {
			result.Outcome = allocate.OutcomeWithSuspense
		}
	case errors.Is(err, models.ErrSuspenseNotFound):
	default:
		return nil, err
	}

	acct, err := tx.GetLoanAccount(payment.LoanID)
	if err != nil {
		return nil, err
	}
	result.LoanCompleted = acct.Status == models.LoanCompleted
	return result, nil
}

// RecordPenalty adds an externally computed penalty to one installment and
// marks it OVERDUE. Penalties are consumed by the waterfall, never computed
// here.
func (s *Service) RecordPenalty(ctx context.Context, loanID uuid.UUID, sequence int, amount decimal.Decimal) (*models.Installment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", models.ErrInvalidAmount, amount)
	}

	defer s.lockAccount(loanID)()

	var target *models.Installment
	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		acct, err := tx.GetLoanAccount(loanID)
		if err != nil {
			return err
		}
		installments, err := tx.GetInstallments(loanID)
		if err != nil {
			return err
		}
		for _, inst := range installments {
			if inst.Sequence == sequence {
				target = inst
				break
			}
		}
		if target == nil {
			return fmt.Errorf("%w: sequence %d on loan %s", models.ErrInstallmentNotFound, sequence, loanID)
		}
		if target.Status == models.InstallmentPaid {
			return fmt.Errorf("installment %d of loan %s is already settled", sequence, loanID)
		}

		target.PenaltyDue = target.PenaltyDue.Add(amount)
		target.Status = models.InstallmentOverdue
		if err := touch(tx, target); err != nil {
			return err
		}

		acct.OutstandingPenalty = acct.OutstandingPenalty.Add(amount)
		acct.UpdatedAt = time.Now()
		return tx.UpdateLoanAccount(acct)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("penalty recorded",
		zap.String("loan_id", loanID.String()),
		zap.Int("sequence", sequence),
		zap.String("amount", amount.StringFixed(2)))
	return target, nil
}

// AccrueInterest posts an ACCRUAL journal entry for interest earned but not
// yet received. It touches the ledger only; the repayment schedule already
// carries the contractual interest.
func (s *Service) AccrueInterest(ctx context.Context, loanID uuid.UUID, amount decimal.Decimal, when time.Time) (*models.JournalEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", models.ErrInvalidAmount, amount)
	}

	var entry *models.JournalEntry
	var draft *models.JournalEntry
	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		acct, err := tx.GetLoanAccount(loanID)
		if err != nil {
			return err
		}
		if acct.Status != models.LoanActive {
			return fmt.Errorf("%w: status is %s", models.ErrLoanNotActive, acct.Status)
		}

		entry, err = s.post(tx, &draft, when, models.JournalAccrual,
			"interest accrual for loan "+loanID.String(),
			[]ledger.LineInput{
				{AccountCode: AccountInterestReceivable, Debit: amount, Description: "interest accrued"},
				{AccountCode: AccountInterestIncome, Credit: amount, Description: "interest accrued"},
			})
		return err
	})
	s.retainDraft(ctx, draft)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// WriteOff closes a loan as unrecoverable: the outstanding principal moves
// from loans-receivable to loan-loss-expense and the account transitions to
// WRITTEN_OFF. Installment rows keep their state for audit.
func (s *Service) WriteOff(ctx context.Context, loanID uuid.UUID, when time.Time) (*models.LoanAccount, error) {
	defer s.lockAccount(loanID)()

	var acct *models.LoanAccount
	var draft *models.JournalEntry
	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		acct, err = tx.GetLoanAccount(loanID)
		if err != nil {
			return err
		}
		if acct.Status != models.LoanActive && acct.Status != models.LoanDefaulted {
			return fmt.Errorf("%w: status is %s", models.ErrLoanNotActive, acct.Status)
		}

		if acct.OutstandingPrincipal.GreaterThan(decimal.Zero) {
			_, err = s.post(tx, &draft, when, models.JournalWriteOff,
				"write-off of loan "+loanID.String(),
				[]ledger.LineInput{
					{AccountCode: AccountLoanLossExpense, Debit: acct.OutstandingPrincipal, Description: "principal written off"},
					{AccountCode: AccountLoansReceivable, Credit: acct.OutstandingPrincipal, Description: "principal written off"},
				})
			if err != nil {
				return err
			}
		}

		acct.Status = models.LoanWrittenOff
		acct.UpdatedAt = time.Now()
		return tx.UpdateLoanAccount(acct)
	})
	s.retainDraft(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.log.Warn("loan written off",
		zap.String("loan_id", loanID.String()),
		zap.String("principal", acct.OutstandingPrincipal.StringFixed(2)))
	return acct, nil
}

// ResolveSuspense re-applies a held suspense amount through the waterfall and
// posts an ADJUSTMENT entry moving the money out of the suspense account.
// Whatever the schedule cannot absorb stays in suspense; the row is marked
// resolved once its amount reaches zero.
func (s *Service) ResolveSuspense(ctx context.Context, suspenseID uuid.UUID, when time.Time) (*models.SuspenseAmount, error) {
	// Resolve the owning loan first so the account lock is taken before the
	// working transaction opens.
	var loanID uuid.UUID
	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		susp, err := tx.GetSuspense(suspenseID)
		if err != nil {
			return err
		}
		if susp.LoanID == nil {
			return fmt.Errorf("%w: suspense %s is not tied to a loan", models.ErrLoanNotFound, suspenseID)
		}
		loanID = *susp.LoanID
		return nil
	})
	if err != nil {
		return nil, err
	}

	defer s.lockAccount(loanID)()

	var susp *models.SuspenseAmount
	var draft *models.JournalEntry
	err = s.storage.WithinTx(ctx, func(tx store.Tx) error {
		susp, err = tx.GetSuspense(suspenseID)
		if err != nil {
			return err
		}
		if susp.Resolved {
			return nil
		}

		acct, err := tx.GetLoanAccount(loanID)
		if err != nil {
			return err
		}
		installments, err := tx.GetInstallments(loanID)
		if err != nil {
			return err
		}

		statusBefore := snapshotStatuses(installments)
		lines, leftover, err := allocate.Waterfall(installments, susp.Amount)
		if err != nil {
			if errors.Is(err, models.ErrInvalidAmount) {
				return fmt.Errorf("%w: loan %s", models.ErrNothingOutstanding, loanID)
			}
			return err
		}
		applied := susp.Amount.Sub(leftover)
		if applied.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: loan %s", models.ErrNothingOutstanding, loanID)
		}

		res := &allocate.Result{Lines: lines}
		if err := touchAllocated(tx, installments, statusBefore, lines); err != nil {
			return err
		}

		acct.OutstandingPenalty = acct.OutstandingPenalty.Sub(res.PenaltyApplied())
		acct.OutstandingInterest = acct.OutstandingInterest.Sub(res.InterestApplied())
		acct.OutstandingPrincipal = acct.OutstandingPrincipal.Sub(res.PrincipalApplied())
		acct.TotalPaid = acct.TotalPaid.Add(applied)
		if allSettled(installments) {
			acct.Status = models.LoanCompleted
		}
		acct.UpdatedAt = time.Now()
		if err := tx.UpdateLoanAccount(acct); err != nil {
			return err
		}

		susp.Amount = leftover
		if leftover.IsZero() {
			now := time.Now()
			susp.Resolved = true
			susp.ResolvedAt = &now
		}
		if err := tx.UpdateSuspense(susp); err != nil {
			return err
		}

		offsets := []ledger.LineInput{
			{AccountCode: AccountPaymentSuspense, Debit: applied, Description: "suspense resolved"},
		}
		offsets = append(offsets, creditLines(res.PenaltyApplied(), res.InterestApplied(), res.PrincipalApplied())...)
		_, err = s.post(tx, &draft, when, models.JournalAdjustment,
			"suspense resolution "+suspenseID.String(), offsets)
		return err
	})
	s.retainDraft(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.log.Info("suspense resolved",
		zap.String("suspense_id", suspenseID.String()),
		zap.String("loan_id", loanID.String()),
		zap.Bool("fully_resolved", susp.Resolved))
	return susp, nil
}

// MarkOverdue flips past-due open installments to OVERDUE. Intended to run
// from a periodic sweep.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.MarkInstallmentsOverdue(asOf)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("installments marked overdue", zap.Int64("count", n))
	}
	return n, nil
}

// GetLoan retrieves a loan account by id.
func (s *Service) GetLoan(ctx context.Context, id uuid.UUID) (*models.LoanAccount, error) {
	var acct *models.LoanAccount
	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		acct, err = tx.GetLoanAccount(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ListLoans retrieves all loan accounts.
func (s *Service) ListLoans(ctx context.Context) ([]*models.LoanAccount, error) {
	var accts []*models.LoanAccount
	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		accts, err = tx.ListLoanAccounts()
		return err
	})
	if err != nil {
		return nil, err
	}
	return accts, nil
}

// GetSchedule retrieves a loan's installments in sequence order.
func (s *Service) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error) {
	var installments []*models.Installment
	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetLoanAccount(loanID); err != nil {
			return err
		}
		var err error
		installments, err = tx.GetInstallments(loanID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return installments, nil
}

// SuspenseForLoan lists the suspense amounts held against one loan.
func (s *Service) SuspenseForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.SuspenseAmount, error) {
	var result []*models.SuspenseAmount
	err := s.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		result, err = tx.ListSuspenseForLoan(loanID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// post forwards to the ledger poster, capturing the entry for draft retention
// when the posting is unbalanced.
func (s *Service) post(tx store.Tx, draft **models.JournalEntry, when time.Time, typ models.JournalType, memo string, lines []ledger.LineInput) (*models.JournalEntry, error) {
	entry, err := s.poster.Post(tx, when, typ, memo, lines)
	if err != nil && errors.Is(err, models.ErrUnbalancedEntry) {
		*draft = entry
	}
	return entry, err
}

// retainDraft persists a rejected entry after the enclosing transaction has
// rolled back, so operators can reconcile it.
func (s *Service) retainDraft(ctx context.Context, draft *models.JournalEntry) {
	if draft == nil {
		return
	}
	if err := s.poster.RetainDraft(ctx, draft); err != nil {
		s.log.Error("failed to retain draft journal entry", zap.Error(err))
	}
}

// repaymentLines composes the journal lines for a repayment: cash in, income
// and receivable out, any excess into suspense.
func repaymentLines(amount, penalty, interestAmt, principal, suspense decimal.Decimal) []ledger.LineInput {
	lines := []ledger.LineInput{
		{AccountCode: AccountCash, Debit: amount, Description: "payment received"},
	}
	lines = append(lines, creditLines(penalty, interestAmt, principal)...)
	if suspense.GreaterThan(decimal.Zero) {
		lines = append(lines, ledger.LineInput{AccountCode: AccountPaymentSuspense, Credit: suspense, Description: "overpayment held in suspense"})
	}
	return lines
}

func creditLines(penalty, interestAmt, principal decimal.Decimal) []ledger.LineInput {
	var lines []ledger.LineInput
	if penalty.GreaterThan(decimal.Zero) {
		lines = append(lines, ledger.LineInput{AccountCode: AccountPenaltyIncome, Credit: penalty, Description: "penalty collected"})
	}
	if interestAmt.GreaterThan(decimal.Zero) {
		lines = append(lines, ledger.LineInput{AccountCode: AccountInterestIncome, Credit: interestAmt, Description: "interest collected"})
	}
	if principal.GreaterThan(decimal.Zero) {
		lines = append(lines, ledger.LineInput{AccountCode: AccountLoansReceivable, Credit: principal, Description: "principal repaid"})
	}
	return lines
}

func allSettled(installments []*models.Installment) bool {
	for _, inst := range installments {
		if inst.Status != models.InstallmentPaid {
			return false
		}
	}
	return len(installments) > 0
}

func touch(tx store.Tx, inst *models.Installment) error {
	inst.UpdatedAt = time.Now()
	return tx.UpdateInstallment(inst)
}

func snapshotStatuses(installments []*models.Installment) map[uuid.UUID]models.InstallmentStatus {
	statuses := make(map[uuid.UUID]models.InstallmentStatus, len(installments))
	for _, inst := range installments {
		statuses[inst.ID] = inst.Status
	}
	return statuses
}

// touchAllocated persists every installment the waterfall mutated: those that
// received an allocation line, plus any settled with a status change only
// (a zero-due period carries no line but still flips to PAID).
func touchAllocated(tx store.Tx, installments []*models.Installment, statusBefore map[uuid.UUID]models.InstallmentStatus, lines []allocate.Line) error {
	allocated := make(map[uuid.UUID]bool, len(lines))
	for _, line := range lines {
		allocated[line.Installment.ID] = true
	}
	for _, inst := range installments {
		if allocated[inst.ID] || inst.Status != statusBefore[inst.ID] {
			if err := touch(tx, inst); err != nil {
				return err
			}
		}
	}
	return nil
}

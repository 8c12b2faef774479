package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savannahcredit/saccoledger/pkg/models"
)

// Tx is the unit-of-work view of the database. Every mutation of a loan and
// the ledger postings that accompany it run against one Tx so they commit or
// roll back together.
type Tx interface {
	CreateLoanAccount(acct *models.LoanAccount) error
	GetLoanAccount(id uuid.UUID) (*models.LoanAccount, error)
	UpdateLoanAccount(acct *models.LoanAccount) error
	ListLoanAccounts() ([]*models.LoanAccount, error)

	// CreateInstallments writes a schedule as one batch; a failure aborts the
	// enclosing transaction so no partial schedule is ever visible.
	CreateInstallments(installments []*models.Installment) error
	GetInstallments(loanID uuid.UUID) ([]*models.Installment, error)
	UpdateInstallment(inst *models.Installment) error
	// MarkInstallmentsOverdue flips past-due open installments to OVERDUE and
	// returns how many rows changed.
	MarkInstallmentsOverdue(asOf time.Time) (int64, error)

	GetPaymentByReference(reference string) (*models.Payment, error)
	CreatePayment(payment *models.Payment) error
	CreateAllocationLines(lines []*models.AllocationLine) error
	GetAllocationLines(paymentID uuid.UUID) ([]*models.AllocationLine, error)

	CreateSuspense(s *models.SuspenseAmount) error
	GetSuspense(id uuid.UUID) (*models.SuspenseAmount, error)
	GetSuspenseByPayment(paymentID uuid.UUID) (*models.SuspenseAmount, error)
	ListSuspenseForLoan(loanID uuid.UUID) ([]*models.SuspenseAmount, error)
	UpdateSuspense(s *models.SuspenseAmount) error

	// NextJournalNumber atomically increments the journal counter. Numbers
	// are collision-free under concurrency and gap-tolerant on rollback.
	NextJournalNumber() (int64, error)
	CreateJournalEntry(entry *models.JournalEntry) error
	GetJournalEntryByNumber(journalNumber string) (*models.JournalEntry, error)
	MarkJournalReversed(id uuid.UUID, reversedBy string) error
	AppendLedgerRecords(records []*models.GeneralLedgerRecord) error
	// AccountBalance derives sum(debit) - sum(credit) over ledger records
	// with transactionDate <= asOf. Zero when no records exist.
	AccountBalance(accountCode string, asOf time.Time) (decimal.Decimal, error)
	LedgerRecords(accountCode string) ([]*models.GeneralLedgerRecord, error)
}

// Storage opens transactional scopes over the underlying database.
type Storage interface {
	// WithinTx runs fn inside a database transaction, committing on nil and
	// rolling back on error.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

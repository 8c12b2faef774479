package models

import "errors"

// Domain errors. These belong to the business layer; callers translate them
// to transport-level responses with errors.Is.
var (
	// ErrInvalidTerm is returned when a loan term is zero or negative.
	ErrInvalidTerm = errors.New("term must be a positive number of months")

	// ErrUnsupportedMethod is returned for an interest method the calculator
	// does not know. There is no fallback method.
	ErrUnsupportedMethod = errors.New("unsupported interest method")

	// ErrInvalidPrincipal is returned when a principal is zero or negative.
	ErrInvalidPrincipal = errors.New("principal must be positive")

	// ErrUnknownFrequency is returned for a repayment frequency outside
	// MONTHLY/WEEKLY/DAILY.
	ErrUnknownFrequency = errors.New("unknown repayment frequency")

	// ErrInvalidAmount is returned when a payment or posting amount is zero
	// or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrUnbalancedEntry is returned when a journal entry's debits and
	// credits do not match to the cent. The offending entry is retained in
	// DRAFT for reconciliation.
	ErrUnbalancedEntry = errors.New("journal entry debits and credits do not balance")

	// ErrConcurrentModification signals a lost optimistic-lock race; the
	// operation can be retried.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrLoanNotFound is returned when a loan account does not exist.
	ErrLoanNotFound = errors.New("loan account not found")

	// ErrInstallmentNotFound is returned when an installment sequence does
	// not exist for a loan.
	ErrInstallmentNotFound = errors.New("installment not found")

	// ErrPaymentNotFound is returned when a payment reference is unknown.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrSuspenseNotFound is returned when a suspense amount does not exist.
	ErrSuspenseNotFound = errors.New("suspense amount not found")

	// ErrJournalNotFound is returned when a journal number is unknown.
	ErrJournalNotFound = errors.New("journal entry not found")

	// ErrJournalNotPosted is returned when reversing an entry that is not in
	// POSTED status.
	ErrJournalNotPosted = errors.New("journal entry is not posted")

	// ErrLoanNotPending is returned when disbursing a loan that has already
	// been disbursed or closed.
	ErrLoanNotPending = errors.New("loan account is not pending disbursement")

	// ErrLoanNotActive is returned for operations that require an active loan.
	ErrLoanNotActive = errors.New("loan account is not active")

	// ErrNothingOutstanding is returned when resolving suspense against a
	// loan with no open installments.
	ErrNothingOutstanding = errors.New("loan has no outstanding installments")
)

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InterestMethod selects how a loan product prices interest.
type InterestMethod string

const (
	InterestPerMonth  InterestMethod = "PER_MONTH"  // flat monthly rate across the whole term
	InterestOnceTotal InterestMethod = "ONCE_TOTAL" // single flat rate, independent of term
)

// RepaymentFrequency controls how installment due dates are spaced.
type RepaymentFrequency string

const (
	FrequencyMonthly RepaymentFrequency = "MONTHLY"
	FrequencyWeekly  RepaymentFrequency = "WEEKLY"
	FrequencyDaily   RepaymentFrequency = "DAILY"
)

type LoanStatus string

const (
	LoanPending    LoanStatus = "PENDING"
	LoanActive     LoanStatus = "ACTIVE"
	LoanCompleted  LoanStatus = "COMPLETED"
	LoanDefaulted  LoanStatus = "DEFAULTED"
	LoanWrittenOff LoanStatus = "WRITTEN_OFF"
)

// LoanAccount is the aggregate root for the repayment side of the core.
// Outstanding amounts are maintained as scheduled minus paid per component and
// must never go negative.
type LoanAccount struct {
	ID                   uuid.UUID          `json:"id"`
	CustomerKey          string             `json:"customer_key"` // Link to external customer system
	Principal            decimal.Decimal    `json:"principal"`
	InterestRate         decimal.Decimal    `json:"interest_rate"` // Percentage, e.g. 10 for 10%
	TermMonths           int                `json:"term_months"`
	InterestMethod       InterestMethod     `json:"interest_method"`
	Frequency            RepaymentFrequency `json:"frequency"`
	Status               LoanStatus         `json:"status"`
	OutstandingPrincipal decimal.Decimal    `json:"outstanding_principal"`
	OutstandingInterest  decimal.Decimal    `json:"outstanding_interest"`
	OutstandingPenalty   decimal.Decimal    `json:"outstanding_penalty"`
	TotalPaid            decimal.Decimal    `json:"total_paid"`
	DisbursedAt          *time.Time         `json:"disbursed_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

type InstallmentStatus string

const (
	InstallmentPending       InstallmentStatus = "PENDING"
	InstallmentPartiallyPaid InstallmentStatus = "PARTIALLY_PAID"
	InstallmentPaid          InstallmentStatus = "PAID"
	InstallmentOverdue       InstallmentStatus = "OVERDUE"
)

// Installment is one line of a loan's repayment schedule. Created as an atomic
// batch at disbursement, never deleted, mutated only by payment allocation and
// penalty recording.
type Installment struct {
	ID               uuid.UUID         `json:"id"`
	LoanID           uuid.UUID         `json:"loan_id"`
	Sequence         int               `json:"sequence"` // 1..N, unique per loan, due-date ascending
	DueDate          time.Time         `json:"due_date"`
	CommencementDate time.Time         `json:"commencement_date"` // derived backwards from the due date
	PrincipalDue     decimal.Decimal   `json:"principal_due"`
	InterestDue      decimal.Decimal   `json:"interest_due"`
	PenaltyDue       decimal.Decimal   `json:"penalty_due"` // supplied externally after the due date passes
	PrincipalPaid    decimal.Decimal   `json:"principal_paid"`
	InterestPaid     decimal.Decimal   `json:"interest_paid"`
	PenaltyPaid      decimal.Decimal   `json:"penalty_paid"`
	Status           InstallmentStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// TotalDue returns principal + interest + penalty due.
func (i *Installment) TotalDue() decimal.Decimal {
	return i.PrincipalDue.Add(i.InterestDue).Add(i.PenaltyDue)
}

// TotalPaid returns principal + interest + penalty paid so far.
func (i *Installment) TotalPaid() decimal.Decimal {
	return i.PrincipalPaid.Add(i.InterestPaid).Add(i.PenaltyPaid)
}

// Outstanding returns the unpaid remainder across all three components.
func (i *Installment) Outstanding() decimal.Decimal {
	return i.TotalDue().Sub(i.TotalPaid())
}

// FullyPaid reports whether every component has been settled.
func (i *Installment) FullyPaid() bool {
	return i.Outstanding().LessThanOrEqual(decimal.Zero)
}

// Open reports whether the installment can still receive allocations.
func (i *Installment) Open() bool {
	return i.Status != InstallmentPaid
}

// Payment is an incoming money receipt. Reference is externally supplied and
// globally unique; it is the idempotency key for allocation. Once applied, a
// payment is immutable.
type Payment struct {
	ID         uuid.UUID       `json:"id"`
	Reference  string          `json:"reference"`
	LoanID     uuid.UUID       `json:"loan_id"`
	Amount     decimal.Decimal `json:"amount"`
	ReceivedAt time.Time       `json:"received_at"`
	Applied    bool            `json:"applied"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AllocationLine records how much of a payment went to one installment. The
// persisted lines let a duplicate delivery of the same payment reference be
// answered with the original result.
type AllocationLine struct {
	ID            uuid.UUID       `json:"id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	InstallmentID uuid.UUID       `json:"installment_id"`
	Sequence      int             `json:"sequence"`
	PenaltyPaid   decimal.Decimal `json:"penalty_paid"`
	InterestPaid  decimal.Decimal `json:"interest_paid"`
	PrincipalPaid decimal.Decimal `json:"principal_paid"`
}

type SuspenseReason string

const (
	SuspenseOverpayment SuspenseReason = "OVERPAYMENT"
	SuspenseUnmatched   SuspenseReason = "UNMATCHED"
)

// SuspenseAmount holds payment value that could not be matched to an
// outstanding obligation. LoanID is nil when the amount could not be tied to
// any loan at all.
type SuspenseAmount struct {
	ID         uuid.UUID       `json:"id"`
	PaymentID  uuid.UUID       `json:"payment_id"`
	LoanID     *uuid.UUID      `json:"loan_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     SuspenseReason  `json:"reason"`
	Resolved   bool            `json:"resolved"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

type JournalType string

const (
	JournalDisbursement JournalType = "DISBURSEMENT"
	JournalRepayment    JournalType = "REPAYMENT"
	JournalAccrual      JournalType = "ACCRUAL"
	JournalWriteOff     JournalType = "WRITE_OFF"
	JournalAdjustment   JournalType = "ADJUSTMENT"
)

type JournalStatus string

const (
	JournalDraft    JournalStatus = "DRAFT"
	JournalPosted   JournalStatus = "POSTED"
	JournalReversed JournalStatus = "REVERSED"
)

// JournalEntry is one balanced financial event. An entry whose lines do not
// balance is retained in DRAFT for reconciliation and never reaches the
// general ledger.
type JournalEntry struct {
	ID              uuid.UUID      `json:"id"`
	JournalNumber   string         `json:"journal_number"`
	TransactionDate time.Time      `json:"transaction_date"`
	Type            JournalType    `json:"type"`
	Memo            string         `json:"memo"`
	Lines           []*JournalLine `json:"lines"`
	IsBalanced      bool           `json:"is_balanced"`
	Status          JournalStatus  `json:"status"`
	ReversedBy      string         `json:"reversed_by,omitempty"` // journal number of the offsetting entry
	CreatedAt       time.Time      `json:"created_at"`
}

// TotalDebit sums the debit side of all lines.
func (e *JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums the credit side of all lines.
func (e *JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// JournalLine is one side of a journal entry. Exactly one of Debit or Credit
// is nonzero.
type JournalLine struct {
	ID          uuid.UUID       `json:"id"`
	JournalID   uuid.UUID       `json:"journal_id"`
	LineNo      int             `json:"line_no"`
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
}

// GeneralLedgerRecord is one append-only general ledger row. Seq is the
// insertion sequence and serves as the stable tie-break when ordering by
// transaction date; no running balance is stored, balances are always derived.
type GeneralLedgerRecord struct {
	Seq             int64           `json:"seq"`
	AccountCode     string          `json:"account_code"`
	JournalNumber   string          `json:"journal_number"`
	TransactionDate time.Time       `json:"transaction_date"`
	Debit           decimal.Decimal `json:"debit"`
	Credit          decimal.Decimal `json:"credit"`
	CreatedAt       time.Time       `json:"created_at"`
}

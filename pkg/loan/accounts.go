package loan

// Account codes used when composing journal entries. The vocabulary comes
// from the chart-of-accounts module; the ledger poster never validates or
// invents codes.
const (
	AccountLoansReceivable    = "loans-receivable"
	AccountCash               = "cash"
	AccountInterestIncome     = "interest-income"
	AccountInterestReceivable = "interest-receivable"
	AccountPenaltyIncome      = "penalty-income"
	AccountPaymentSuspense    = "payment-suspense"
	AccountLoanLossExpense    = "loan-loss-expense"
)

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savannahcredit/saccoledger/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and transactional scopes for
// SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and initializes the schema. Transactions
// begin with the writer lock held (_txlock=immediate) regardless of the DSN,
// so concurrent writers queue instead of failing on lock upgrade.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	if !strings.Contains(dataSourceName, "_txlock=") {
		sep := "?"
		if strings.Contains(dataSourceName, "?") {
			sep = "&"
		}
		dataSourceName += sep + "_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loan_accounts (
		id TEXT PRIMARY KEY,
		customer_key TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		interest_method TEXT NOT NULL,
		repayment_frequency TEXT NOT NULL,
		status TEXT NOT NULL,
		outstanding_principal TEXT NOT NULL,
		outstanding_interest TEXT NOT NULL,
		outstanding_penalty TEXT NOT NULL,
		total_paid TEXT NOT NULL,
		disbursed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		due_date DATETIME NOT NULL,
		commencement_date DATETIME NOT NULL,
		principal_due TEXT NOT NULL,
		interest_due TEXT NOT NULL,
		penalty_due TEXT NOT NULL,
		principal_paid TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		penalty_paid TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(loan_id, seq),
		FOREIGN KEY(loan_id) REFERENCES loan_accounts(id)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		applied INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS allocation_lines (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		installment_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		penalty_paid TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		principal_paid TEXT NOT NULL,
		FOREIGN KEY(payment_id) REFERENCES payments(id),
		FOREIGN KEY(installment_id) REFERENCES installments(id)
	);
	CREATE TABLE IF NOT EXISTS suspense_amounts (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		loan_id TEXT,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME,
		FOREIGN KEY(payment_id) REFERENCES payments(id)
	);
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		journal_number TEXT NOT NULL UNIQUE,
		transaction_date DATETIME NOT NULL,
		type TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		is_balanced INTEGER NOT NULL,
		status TEXT NOT NULL,
		reversed_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS journal_lines (
		id TEXT PRIMARY KEY,
		journal_id TEXT NOT NULL,
		line_no INTEGER NOT NULL,
		account_code TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(journal_id) REFERENCES journal_entries(id)
	);
	CREATE TABLE IF NOT EXISTS general_ledger (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		account_code TEXT NOT NULL,
		journal_number TEXT NOT NULL,
		transaction_date DATETIME NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_general_ledger_account ON general_ledger(account_code, transaction_date);
	CREATE TABLE IF NOT EXISTS journal_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO journal_sequence (id, next_value) VALUES (1, 1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithinTx runs fn in one database transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) CreateLoanAccount(acct *models.LoanAccount) error {
	_, err := t.tx.Exec(
		`INSERT INTO loan_accounts (id, customer_key, principal, interest_rate, term_months, interest_method, repayment_frequency, status, outstanding_principal, outstanding_interest, outstanding_penalty, total_paid, disbursed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID.String(), acct.CustomerKey, acct.Principal, acct.InterestRate, acct.TermMonths, acct.InterestMethod, acct.Frequency, acct.Status,
		acct.OutstandingPrincipal, acct.OutstandingInterest, acct.OutstandingPenalty, acct.TotalPaid, acct.DisbursedAt, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan account: %w", err)
	}
	return nil
}

const loanAccountColumns = `id, customer_key, principal, interest_rate, term_months, interest_method, repayment_frequency, status, outstanding_principal, outstanding_interest, outstanding_penalty, total_paid, disbursed_at, created_at, updated_at`

func scanLoanAccount(row interface{ Scan(...any) error }) (*models.LoanAccount, error) {
	var acct models.LoanAccount
	var idStr string
	var disbursedAt sql.NullTime
	err := row.Scan(&idStr, &acct.CustomerKey, &acct.Principal, &acct.InterestRate, &acct.TermMonths, &acct.InterestMethod, &acct.Frequency, &acct.Status,
		&acct.OutstandingPrincipal, &acct.OutstandingInterest, &acct.OutstandingPenalty, &acct.TotalPaid, &disbursedAt, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		return nil, err
	}
	acct.ID = uuid.MustParse(idStr)
	if disbursedAt.Valid {
		acct.DisbursedAt = &disbursedAt.Time
	}
	return &acct, nil
}

func (t *sqliteTx) GetLoanAccount(id uuid.UUID) (*models.LoanAccount, error) {
	row := t.tx.QueryRow(`SELECT `+loanAccountColumns+` FROM loan_accounts WHERE id = ?`, id.String())
	acct, err := scanLoanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan account: %w", err)
	}
	return acct, nil
}

func (t *sqliteTx) UpdateLoanAccount(acct *models.LoanAccount) error {
	result, err := t.tx.Exec(
		`UPDATE loan_accounts SET customer_key = ?, principal = ?, interest_rate = ?, term_months = ?, interest_method = ?, repayment_frequency = ?, status = ?, outstanding_principal = ?, outstanding_interest = ?, outstanding_penalty = ?, total_paid = ?, disbursed_at = ?, updated_at = ? WHERE id = ?`,
		acct.CustomerKey, acct.Principal, acct.InterestRate, acct.TermMonths, acct.InterestMethod, acct.Frequency, acct.Status,
		acct.OutstandingPrincipal, acct.OutstandingInterest, acct.OutstandingPenalty, acct.TotalPaid, acct.DisbursedAt, acct.UpdatedAt, acct.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrLoanNotFound
	}
	return nil
}

func (t *sqliteTx) ListLoanAccounts() ([]*models.LoanAccount, error) {
	rows, err := t.tx.Query(`SELECT ` + loanAccountColumns + ` FROM loan_accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loan accounts: %w", err)
	}
	defer rows.Close()

	var accts []*models.LoanAccount
	for rows.Next() {
		acct, err := scanLoanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan account row: %w", err)
		}
		accts = append(accts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return accts, nil
}

func (t *sqliteTx) CreateInstallments(installments []*models.Installment) error {
	stmt, err := t.tx.Prepare(
		`INSERT INTO installments (id, loan_id, seq, due_date, commencement_date, principal_due, interest_due, penalty_due, principal_paid, interest_paid, penalty_paid, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare installment insert: %w", err)
	}
	defer stmt.Close()

	for _, inst := range installments {
		_, err := stmt.Exec(inst.ID.String(), inst.LoanID.String(), inst.Sequence, inst.DueDate, inst.CommencementDate,
			inst.PrincipalDue, inst.InterestDue, inst.PenaltyDue, inst.PrincipalPaid, inst.InterestPaid, inst.PenaltyPaid,
			inst.Status, inst.CreatedAt, inst.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", inst.Sequence, err)
		}
	}
	return nil
}

func (t *sqliteTx) GetInstallments(loanID uuid.UUID) ([]*models.Installment, error) {
	rows, err := t.tx.Query(
		`SELECT id, loan_id, seq, due_date, commencement_date, principal_due, interest_due, penalty_due, principal_paid, interest_paid, penalty_paid, status, created_at, updated_at
		FROM installments WHERE loan_id = ? ORDER BY seq ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get installments: %w", err)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		var inst models.Installment
		var idStr, loanIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &inst.Sequence, &inst.DueDate, &inst.CommencementDate,
			&inst.PrincipalDue, &inst.InterestDue, &inst.PenaltyDue, &inst.PrincipalPaid, &inst.InterestPaid, &inst.PenaltyPaid,
			&inst.Status, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		inst.ID = uuid.MustParse(idStr)
		inst.LoanID = uuid.MustParse(loanIDStr)
		installments = append(installments, &inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return installments, nil
}

func (t *sqliteTx) UpdateInstallment(inst *models.Installment) error {
	result, err := t.tx.Exec(
		`UPDATE installments SET due_date = ?, commencement_date = ?, principal_due = ?, interest_due = ?, penalty_due = ?, principal_paid = ?, interest_paid = ?, penalty_paid = ?, status = ?, updated_at = ? WHERE id = ?`,
		inst.DueDate, inst.CommencementDate, inst.PrincipalDue, inst.InterestDue, inst.PenaltyDue,
		inst.PrincipalPaid, inst.InterestPaid, inst.PenaltyPaid, inst.Status, inst.UpdatedAt, inst.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrInstallmentNotFound
	}
	return nil
}

func (t *sqliteTx) MarkInstallmentsOverdue(asOf time.Time) (int64, error) {
	result, err := t.tx.Exec(
		`UPDATE installments SET status = ?, updated_at = ? WHERE status IN (?, ?) AND due_date < ?`,
		models.InstallmentOverdue, time.Now(), models.InstallmentPending, models.InstallmentPartiallyPaid, asOf,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark installments overdue: %w", err)
	}
	return result.RowsAffected()
}

func (t *sqliteTx) GetPaymentByReference(reference string) (*models.Payment, error) {
	var p models.Payment
	var idStr, loanIDStr string
	row := t.tx.QueryRow(`SELECT id, reference, loan_id, amount, received_at, applied, created_at FROM payments WHERE reference = ?`, reference)
	if err := row.Scan(&idStr, &p.Reference, &loanIDStr, &p.Amount, &p.ReceivedAt, &p.Applied, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	p.ID = uuid.MustParse(idStr)
	p.LoanID = uuid.MustParse(loanIDStr)
	return &p, nil
}

func (t *sqliteTx) CreatePayment(payment *models.Payment) error {
	_, err := t.tx.Exec(
		`INSERT INTO payments (id, reference, loan_id, amount, received_at, applied, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.Reference, payment.LoanID.String(), payment.Amount, payment.ReceivedAt, payment.Applied, payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (t *sqliteTx) CreateAllocationLines(lines []*models.AllocationLine) error {
	stmt, err := t.tx.Prepare(
		`INSERT INTO allocation_lines (id, payment_id, installment_id, seq, penalty_paid, interest_paid, principal_paid) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare allocation line insert: %w", err)
	}
	defer stmt.Close()

	for _, line := range lines {
		_, err := stmt.Exec(line.ID.String(), line.PaymentID.String(), line.InstallmentID.String(), line.Sequence,
			line.PenaltyPaid, line.InterestPaid, line.PrincipalPaid)
		if err != nil {
			return fmt.Errorf("failed to create allocation line: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) GetAllocationLines(paymentID uuid.UUID) ([]*models.AllocationLine, error) {
	rows, err := t.tx.Query(
		`SELECT id, payment_id, installment_id, seq, penalty_paid, interest_paid, principal_paid FROM allocation_lines WHERE payment_id = ? ORDER BY seq ASC`,
		paymentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation lines: %w", err)
	}
	defer rows.Close()

	var lines []*models.AllocationLine
	for rows.Next() {
		var line models.AllocationLine
		var idStr, paymentIDStr, installmentIDStr string
		if err := rows.Scan(&idStr, &paymentIDStr, &installmentIDStr, &line.Sequence, &line.PenaltyPaid, &line.InterestPaid, &line.PrincipalPaid); err != nil {
			return nil, fmt.Errorf("failed to scan allocation line row: %w", err)
		}
		line.ID = uuid.MustParse(idStr)
		line.PaymentID = uuid.MustParse(paymentIDStr)
		line.InstallmentID = uuid.MustParse(installmentIDStr)
		lines = append(lines, &line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return lines, nil
}

func (t *sqliteTx) CreateSuspense(s *models.SuspenseAmount) error {
	var loanID any
	if s.LoanID != nil {
		loanID = s.LoanID.String()
	}
	_, err := t.tx.Exec(
		`INSERT INTO suspense_amounts (id, payment_id, loan_id, amount, reason, resolved, created_at, resolved_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.PaymentID.String(), loanID, s.Amount, s.Reason, s.Resolved, s.CreatedAt, s.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create suspense amount: %w", err)
	}
	return nil
}

func scanSuspense(row interface{ Scan(...any) error }) (*models.SuspenseAmount, error) {
	var s models.SuspenseAmount
	var idStr, paymentIDStr string
	var loanIDStr sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(&idStr, &paymentIDStr, &loanIDStr, &s.Amount, &s.Reason, &s.Resolved, &s.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	s.ID = uuid.MustParse(idStr)
	s.PaymentID = uuid.MustParse(paymentIDStr)
	if loanIDStr.Valid {
		loanID := uuid.MustParse(loanIDStr.String)
		s.LoanID = &loanID
	}
	if resolvedAt.Valid {
		s.ResolvedAt = &resolvedAt.Time
	}
	return &s, nil
}

const suspenseColumns = `id, payment_id, loan_id, amount, reason, resolved, created_at, resolved_at`

func (t *sqliteTx) GetSuspense(id uuid.UUID) (*models.SuspenseAmount, error) {
	row := t.tx.QueryRow(`SELECT `+suspenseColumns+` FROM suspense_amounts WHERE id = ?`, id.String())
	s, err := scanSuspense(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrSuspenseNotFound
		}
		return nil, fmt.Errorf("failed to get suspense amount: %w", err)
	}
	return s, nil
}

func (t *sqliteTx) GetSuspenseByPayment(paymentID uuid.UUID) (*models.SuspenseAmount, error) {
	row := t.tx.QueryRow(`SELECT `+suspenseColumns+` FROM suspense_amounts WHERE payment_id = ?`, paymentID.String())
	s, err := scanSuspense(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrSuspenseNotFound
		}
		return nil, fmt.Errorf("failed to get suspense amount: %w", err)
	}
	return s, nil
}

func (t *sqliteTx) ListSuspenseForLoan(loanID uuid.UUID) ([]*models.SuspenseAmount, error) {
	rows, err := t.tx.Query(`SELECT `+suspenseColumns+` FROM suspense_amounts WHERE loan_id = ? ORDER BY created_at ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list suspense amounts: %w", err)
	}
	defer rows.Close()

	var result []*models.SuspenseAmount
	for rows.Next() {
		s, err := scanSuspense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suspense row: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return result, nil
}

func (t *sqliteTx) UpdateSuspense(s *models.SuspenseAmount) error {
	result, err := t.tx.Exec(
		`UPDATE suspense_amounts SET amount = ?, resolved = ?, resolved_at = ? WHERE id = ?`,
		s.Amount, s.Resolved, s.ResolvedAt, s.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update suspense amount: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrSuspenseNotFound
	}
	return nil
}

func (t *sqliteTx) NextJournalNumber() (int64, error) {
	var n int64
	row := t.tx.QueryRow(`UPDATE journal_sequence SET next_value = next_value + 1 WHERE id = 1 RETURNING next_value - 1`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to advance journal sequence: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) CreateJournalEntry(entry *models.JournalEntry) error {
	_, err := t.tx.Exec(
		`INSERT INTO journal_entries (id, journal_number, transaction_date, type, memo, is_balanced, status, reversed_by, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.JournalNumber, entry.TransactionDate, entry.Type, entry.Memo, entry.IsBalanced, entry.Status, entry.ReversedBy, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create journal entry: %w", err)
	}

	stmt, err := t.tx.Prepare(
		`INSERT INTO journal_lines (id, journal_id, line_no, account_code, debit, credit, description) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare journal line insert: %w", err)
	}
	defer stmt.Close()

	for _, line := range entry.Lines {
		_, err := stmt.Exec(line.ID.String(), entry.ID.String(), line.LineNo, line.AccountCode, line.Debit, line.Credit, line.Description)
		if err != nil {
			return fmt.Errorf("failed to create journal line %d: %w", line.LineNo, err)
		}
	}
	return nil
}

func (t *sqliteTx) GetJournalEntryByNumber(journalNumber string) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	var idStr string
	row := t.tx.QueryRow(
		`SELECT id, journal_number, transaction_date, type, memo, is_balanced, status, reversed_by, created_at FROM journal_entries WHERE journal_number = ?`,
		journalNumber)
	if err := row.Scan(&idStr, &entry.JournalNumber, &entry.TransactionDate, &entry.Type, &entry.Memo, &entry.IsBalanced, &entry.Status, &entry.ReversedBy, &entry.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrJournalNotFound
		}
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	entry.ID = uuid.MustParse(idStr)

	rows, err := t.tx.Query(
		`SELECT id, journal_id, line_no, account_code, debit, credit, description FROM journal_lines WHERE journal_id = ? ORDER BY line_no ASC`,
		entry.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get journal lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line models.JournalLine
		var lineIDStr, journalIDStr string
		if err := rows.Scan(&lineIDStr, &journalIDStr, &line.LineNo, &line.AccountCode, &line.Debit, &line.Credit, &line.Description); err != nil {
			return nil, fmt.Errorf("failed to scan journal line row: %w", err)
		}
		line.ID = uuid.MustParse(lineIDStr)
		line.JournalID = uuid.MustParse(journalIDStr)
		entry.Lines = append(entry.Lines, &line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return &entry, nil
}

func (t *sqliteTx) MarkJournalReversed(id uuid.UUID, reversedBy string) error {
	result, err := t.tx.Exec(
		`UPDATE journal_entries SET status = ?, reversed_by = ? WHERE id = ? AND status = ?`,
		models.JournalReversed, reversedBy, id.String(), models.JournalPosted,
	)
	if err != nil {
		return fmt.Errorf("failed to mark journal reversed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrJournalNotPosted
	}
	return nil
}

func (t *sqliteTx) AppendLedgerRecords(records []*models.GeneralLedgerRecord) error {
	stmt, err := t.tx.Prepare(
		`INSERT INTO general_ledger (account_code, journal_number, transaction_date, debit, credit, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.Exec(rec.AccountCode, rec.JournalNumber, rec.TransactionDate, rec.Debit, rec.Credit, rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to append ledger record: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) AccountBalance(accountCode string, asOf time.Time) (decimal.Decimal, error) {
	rows, err := t.tx.Query(
		`SELECT debit, credit FROM general_ledger WHERE account_code = ? AND transaction_date <= ? ORDER BY transaction_date ASC, seq ASC`,
		accountCode, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query ledger records: %w", err)
	}
	defer rows.Close()

	// Summed in Go rather than SQL: the amounts live in TEXT columns and must
	// not pass through SQLite's float arithmetic.
	balance := decimal.Zero
	for rows.Next() {
		var debit, credit decimal.Decimal
		if err := rows.Scan(&debit, &credit); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan ledger record: %w", err)
		}
		balance = balance.Add(debit).Sub(credit)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error during rows iteration: %w", err)
	}
	return balance, nil
}

func (t *sqliteTx) LedgerRecords(accountCode string) ([]*models.GeneralLedgerRecord, error) {
	rows, err := t.tx.Query(
		`SELECT seq, account_code, journal_number, transaction_date, debit, credit, created_at FROM general_ledger WHERE account_code = ? ORDER BY transaction_date ASC, seq ASC`,
		accountCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger records: %w", err)
	}
	defer rows.Close()

	var records []*models.GeneralLedgerRecord
	for rows.Next() {
		var rec models.GeneralLedgerRecord
		if err := rows.Scan(&rec.Seq, &rec.AccountCode, &rec.JournalNumber, &rec.TransactionDate, &rec.Debit, &rec.Credit, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return records, nil
}

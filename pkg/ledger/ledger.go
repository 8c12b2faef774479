package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/savannahcredit/saccoledger/pkg/models"
	"github.com/savannahcredit/saccoledger/pkg/store"
)

const journalNumberPad = 6

// LineInput is one requested journal line. Exactly one of Debit or Credit
// must be positive.
type LineInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// Poster translates financial events into balanced journal entries and
// appends them to the append-only general ledger. Account codes come from the
// chart-of-accounts module and are assumed pre-validated; the poster never
// invents codes.
type Poster struct {
	storage store.Storage
	prefix  string
	log     *zap.Logger
}

// NewPoster creates a Poster. prefix is prepended to every journal number,
// e.g. "JRN" yields JRN000001, JRN000002, ...
func NewPoster(s store.Storage, prefix string, log *zap.Logger) *Poster {
	return &Poster{storage: s, prefix: prefix, log: log}
}

// Post validates and posts one journal entry inside the caller's transaction.
// Debits and credits must balance to the cent. On imbalance the built entry is
// returned together with ErrUnbalancedEntry so the caller can retain it as a
// DRAFT outside the aborted transaction; nothing is written here in that case
// and the general ledger is never touched.
func (p *Poster) Post(tx store.Tx, transactionDate time.Time, typ models.JournalType, memo string, lines []LineInput) (*models.JournalEntry, error) {
	entry, err := p.build(transactionDate, typ, memo, lines)
	if err != nil {
		return nil, err
	}

	if !entry.IsBalanced {
		p.log.Warn("unbalanced journal entry rejected",
			zap.String("type", string(typ)),
			zap.String("debit", entry.TotalDebit().StringFixed(2)),
			zap.String("credit", entry.TotalCredit().StringFixed(2)))
		return entry, fmt.Errorf("%w: debit=%s credit=%s",
			models.ErrUnbalancedEntry, entry.TotalDebit().StringFixed(2), entry.TotalCredit().StringFixed(2))
	}

	n, err := tx.NextJournalNumber()
	if err != nil {
		return nil, err
	}
	entry.JournalNumber = p.formatNumber(n)
	entry.Status = models.JournalPosted

	if err := tx.CreateJournalEntry(entry); err != nil {
		return nil, err
	}

	records := make([]*models.GeneralLedgerRecord, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		records = append(records, &models.GeneralLedgerRecord{
			AccountCode:     line.AccountCode,
			JournalNumber:   entry.JournalNumber,
			TransactionDate: entry.TransactionDate,
			Debit:           line.Debit,
			Credit:          line.Credit,
			CreatedAt:       entry.CreatedAt,
		})
	}
	if err := tx.AppendLedgerRecords(records); err != nil {
		return nil, err
	}

	p.log.Info("journal entry posted",
		zap.String("journal_number", entry.JournalNumber),
		zap.String("type", string(typ)),
		zap.Int("lines", len(entry.Lines)))
	return entry, nil
}

// RetainDraft persists an unbalanced entry in DRAFT status for reconciliation.
// It runs in its own transaction because the transaction the entry was
// rejected from has been rolled back. Draft entries never produce general
// ledger records.
func (p *Poster) RetainDraft(ctx context.Context, entry *models.JournalEntry) error {
	return p.storage.WithinTx(ctx, func(tx store.Tx) error {
		n, err := tx.NextJournalNumber()
		if err != nil {
			return err
		}
		entry.JournalNumber = p.formatNumber(n)
		entry.Status = models.JournalDraft
		if err := tx.CreateJournalEntry(entry); err != nil {
			return err
		}
		p.log.Warn("unbalanced journal entry retained as draft",
			zap.String("journal_number", entry.JournalNumber))
		return nil
	})
}

// Reverse posts an offsetting entry with debit and credit swapped on every
// line and marks the original REVERSED. Original records are never mutated or
// deleted.
func (p *Poster) Reverse(ctx context.Context, journalNumber string, transactionDate time.Time) (*models.JournalEntry, error) {
	var reversal *models.JournalEntry
	err := p.storage.WithinTx(ctx, func(tx store.Tx) error {
		original, err := tx.GetJournalEntryByNumber(journalNumber)
		if err != nil {
			return err
		}
		if original.Status != models.JournalPosted {
			return fmt.Errorf("%w: %s is %s", models.ErrJournalNotPosted, journalNumber, original.Status)
		}

		lines := make([]LineInput, 0, len(original.Lines))
		for _, l := range original.Lines {
			lines = append(lines, LineInput{
				AccountCode: l.AccountCode,
				Debit:       l.Credit,
				Credit:      l.Debit,
				Description: "reversal of " + journalNumber,
			})
		}

		reversal, err = p.Post(tx, transactionDate, models.JournalAdjustment, "reversal of "+journalNumber, lines)
		if err != nil {
			return err
		}
		return tx.MarkJournalReversed(original.ID, reversal.JournalNumber)
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

// AccountBalance derives the balance of one account as of a date:
// sum(debit) - sum(credit) over all posted records with
// transactionDate <= asOf. Returns zero before any records exist.
func (p *Poster) AccountBalance(ctx context.Context, accountCode string, asOf time.Time) (decimal.Decimal, error) {
	balance := decimal.Zero
	err := p.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		balance, err = tx.AccountBalance(accountCode, asOf)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Records returns one account's general ledger rows in posting order, for
// reporting reads. The ledger is append-only, so the result is a stable
// statement of the account's history.
func (p *Poster) Records(ctx context.Context, accountCode string) ([]*models.GeneralLedgerRecord, error) {
	var records []*models.GeneralLedgerRecord
	err := p.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		records, err = tx.LedgerRecords(accountCode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Entry fetches a journal entry with its lines by journal number.
func (p *Poster) Entry(ctx context.Context, journalNumber string) (*models.JournalEntry, error) {
	var entry *models.JournalEntry
	err := p.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		entry, err = tx.GetJournalEntryByNumber(journalNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// build assembles and validates the entry without touching storage.
func (p *Poster) build(transactionDate time.Time, typ models.JournalType, memo string, lines []LineInput) (*models.JournalEntry, error) {
	if len(lines) < 2 {
		return nil, fmt.Errorf("journal entry needs at least 2 lines, got %d", len(lines))
	}

	now := time.Now()
	entry := &models.JournalEntry{
		ID:              uuid.New(),
		TransactionDate: transactionDate,
		Type:            typ,
		Memo:            memo,
		Status:          models.JournalDraft,
		CreatedAt:       now,
	}

	for i, in := range lines {
		debitSet := in.Debit.GreaterThan(decimal.Zero)
		creditSet := in.Credit.GreaterThan(decimal.Zero)
		if debitSet == creditSet || in.Debit.IsNegative() || in.Credit.IsNegative() {
			return nil, fmt.Errorf("%w: line %d for account %s must have exactly one positive side",
				models.ErrInvalidAmount, i+1, in.AccountCode)
		}
		entry.Lines = append(entry.Lines, &models.JournalLine{
			ID:          uuid.New(),
			JournalID:   entry.ID,
			LineNo:      i + 1,
			AccountCode: in.AccountCode,
			Debit:       in.Debit,
			Credit:      in.Credit,
			Description: in.Description,
		})
	}

	entry.IsBalanced = entry.TotalDebit().Equal(entry.TotalCredit())
	return entry, nil
}

func (p *Poster) formatNumber(n int64) string {
	return fmt.Sprintf("%s%0*d", p.prefix, journalNumberPad, n)
}

package tally

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// DefaultStaleClaimAfter is how long a pending claim may go untouched
// before another run can take it over.
const DefaultStaleClaimAfter = 30 * time.Minute

// Claim names the customer a run wants to invoice for a file.
type Claim struct {
	FileID      id.FileID
	Customer    string
	RunID       id.RunID
	ContactName string
	UsageNames  []string
}

// Ledger gates invoice emission so that each (file, customer) pair is
// invoiced at most once, even across concurrent runs. Every state change is
// a compare-and-set in the store.
type Ledger struct {
	store      store.Store
	staleAfter time.Duration
	now        func() time.Time
}

// NewLedger returns a Ledger over s. A pending claim untouched for longer
// than staleAfter may be re-claimed; zero means DefaultStaleClaimAfter.
func NewLedger(s store.Store, staleAfter time.Duration, clock func() time.Time) *Ledger {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleClaimAfter
	}
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{store: s, staleAfter: staleAfter, now: clock}
}

// Begin claims c.Customer for c.RunID. It returns the claimed record with
// status pending, or the existing record with status created when the
// customer was already invoiced. A live claim of another run yields
// ErrClaimHeld.
func (l *Ledger) Begin(ctx context.Context, c Claim) (*ledger.Record, error) {
	at := l.now().UTC()
	rec := &ledger.Record{
		Entity:      types.NewEntity(at),
		ID:          id.NewRecordID(),
		FileID:      c.FileID,
		Customer:    c.Customer,
		ContactName: c.ContactName,
		UsageNames:  c.UsageNames,
		RunID:       c.RunID,
	}
	if _, err := ledger.Next(ledger.StatusNone, ledger.TriggerBegin); err != nil {
		return nil, err
	}
	rec.Status = ledger.StatusPending

	err := l.store.CreateRecord(ctx, rec)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return nil, fmt.Errorf("tally: begin %s: %w", c.Customer, err)
	}

	existing, err := l.store.GetRecord(ctx, c.FileID, c.Customer)
	if err != nil {
		return nil, fmt.Errorf("tally: begin %s: %w", c.Customer, err)
	}

	var trigger ledger.Trigger
	switch existing.Status {
	case ledger.StatusCreated:
		return existing, nil
	case ledger.StatusPending:
		if existing.HeldBy(c.RunID) {
			return existing, nil
		}
		if !existing.IsStale(at, l.staleAfter) {
			return existing, ErrClaimHeld
		}
		trigger = ledger.TriggerReclaim
	case ledger.StatusFailed:
		trigger = ledger.TriggerRetry
	default:
		return nil, &LedgerIntegrityError{Customer: c.Customer, Detail: fmt.Sprintf("unknown status %q", existing.Status)}
	}

	t, err := ledger.Plan(existing, trigger, c.RunID, at)
	if err != nil {
		return nil, err
	}
	t.InvoiceNumber, t.InvoiceID = "", ""
	ok, err := l.store.TransitionRecord(ctx, c.FileID, c.Customer, t)
	if err != nil {
		return nil, fmt.Errorf("tally: begin %s: %w", c.Customer, err)
	}
	if !ok {
		return existing, ErrClaimHeld
	}
	t.Apply(existing)
	return existing, nil
}

// Confirm records that the invoice for rec was created. rec must be the
// pending claim returned by Begin for run.
func (l *Ledger) Confirm(ctx context.Context, rec *ledger.Record, run id.RunID, invoiceNumber, invoiceID string, amount types.Money) error {
	return l.advance(ctx, rec, run, ledger.TriggerConfirm, func(t *ledger.Transition) {
		t.InvoiceNumber = invoiceNumber
		t.InvoiceID = invoiceID
		t.Amount = amount
		t.Error = ""
	})
}

// Fail records that emission failed for rec. The next run may retry it.
func (l *Ledger) Fail(ctx context.Context, rec *ledger.Record, run id.RunID, cause error) error {
	return l.advance(ctx, rec, run, ledger.TriggerFail, func(t *ledger.Transition) {
		if cause != nil {
			t.Error = cause.Error()
		}
	})
}

func (l *Ledger) advance(ctx context.Context, rec *ledger.Record, run id.RunID, trigger ledger.Trigger, set func(*ledger.Transition)) error {
	if rec.Status != ledger.StatusPending || !rec.HeldBy(run) {
		return &LedgerIntegrityError{
			Customer: rec.Customer,
			Detail:   fmt.Sprintf("%s needs a pending claim of run %s, record is %s by %s", trigger, run, rec.Status, rec.RunID),
		}
	}
	t, err := ledger.Plan(rec, trigger, run, l.now().UTC())
	if err != nil {
		return &LedgerIntegrityError{Customer: rec.Customer, Detail: err.Error()}
	}
	set(&t)

	ok, err := l.store.TransitionRecord(ctx, rec.FileID, rec.Customer, t)
	if IsNotFound(err) {
		return &LedgerIntegrityError{
			Customer: rec.Customer,
			Detail:   fmt.Sprintf("%s found no ledger record for file %s", trigger, rec.FileID),
		}
	}
	if err != nil {
		return fmt.Errorf("tally: %s %s: %w", trigger, rec.Customer, err)
	}
	if !ok {
		return &LedgerIntegrityError{
			Customer: rec.Customer,
			Detail:   fmt.Sprintf("%s lost the claim of run %s", trigger, run),
		}
	}
	t.Apply(rec)
	return nil
}

// IsProcessed reports whether customer already has a created invoice for
// fileID.
func (l *Ledger) IsProcessed(ctx context.Context, fileID id.FileID, customer string) (bool, error) {
	rec, err := l.store.GetRecord(ctx, fileID, customer)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Status == ledger.StatusCreated, nil
}

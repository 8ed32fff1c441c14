package tally_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/store/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newLedger() (*tally.Ledger, *clock) {
	clk := &clock{t: time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)}
	return tally.NewLedger(memory.New(), 10*time.Minute, clk.Now), clk
}

func TestBeginIsIdempotentForItsRun(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	fileID, run := id.NewFileID(), id.NewRunID()
	claim := tally.Claim{FileID: fileID, Customer: "c-1", RunID: run, ContactName: "Acme Ltd"}

	first, err := l.Begin(ctx, claim)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if first.Status != ledger.StatusPending || !first.HeldBy(run) {
		t.Fatalf("first: got %s held by %s", first.Status, first.RunID)
	}

	again, err := l.Begin(ctx, claim)
	if err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	if again.ID.String() != first.ID.String() {
		t.Error("second Begin created a new record")
	}

	other := claim
	other.RunID = id.NewRunID()
	if _, err := l.Begin(ctx, other); !errors.Is(err, tally.ErrClaimHeld) {
		t.Errorf("other run: got %v, want ErrClaimHeld", err)
	}
}

func TestConfirmIsTerminal(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	fileID, run := id.NewFileID(), id.NewRunID()

	rec, err := l.Begin(ctx, tally.Claim{FileID: fileID, Customer: "c-1", RunID: run})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := l.Confirm(ctx, rec, run, "INV-0042", "inv-1", tally.NZD(2295)); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if rec.Status != ledger.StatusCreated || rec.InvoiceNumber != "INV-0042" {
		t.Errorf("record: got %s %q", rec.Status, rec.InvoiceNumber)
	}

	done, err := l.IsProcessed(ctx, fileID, "c-1")
	if err != nil || !done {
		t.Errorf("IsProcessed: got %v, %v", done, err)
	}

	next := id.NewRunID()
	got, err := l.Begin(ctx, tally.Claim{FileID: fileID, Customer: "c-1", RunID: next})
	if err != nil {
		t.Fatalf("Begin after confirm: %v", err)
	}
	if got.Status != ledger.StatusCreated || got.InvoiceNumber != "INV-0042" {
		t.Errorf("Begin after confirm: got %s %q", got.Status, got.InvoiceNumber)
	}

	var integrity *tally.LedgerIntegrityError
	if err := l.Confirm(ctx, got, next, "INV-0043", "inv-2", tally.NZD(2295)); !errors.As(err, &integrity) {
		t.Errorf("Confirm of created record: got %v, want LedgerIntegrityError", err)
	}
	if err := l.Fail(ctx, got, next, errors.New("late")); !errors.Is(err, tally.ErrLedgerIntegrity) {
		t.Errorf("Fail of created record: got %v", err)
	}
}

func TestFailedRecordIsRetried(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	fileID, run := id.NewFileID(), id.NewRunID()

	rec, _ := l.Begin(ctx, tally.Claim{FileID: fileID, Customer: "c-2", RunID: run})
	if err := l.Fail(ctx, rec, run, errors.New("503")); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if rec.Status != ledger.StatusFailed || rec.Error != "503" {
		t.Errorf("record: got %s %q", rec.Status, rec.Error)
	}

	retry := id.NewRunID()
	rec, err := l.Begin(ctx, tally.Claim{FileID: fileID, Customer: "c-2", RunID: retry})
	if err != nil {
		t.Fatalf("retry Begin: %v", err)
	}
	if rec.Status != ledger.StatusPending || !rec.HeldBy(retry) || rec.Error != "" {
		t.Errorf("retry: got %s held by %s, error %q", rec.Status, rec.RunID, rec.Error)
	}
	if err := l.Confirm(ctx, rec, retry, "INV-0050", "inv-5", tally.NZD(36)); err != nil {
		t.Errorf("Confirm after retry: %v", err)
	}
}

func TestStaleClaimIsReclaimed(t *testing.T) {
	ctx := context.Background()
	l, clk := newLedger()
	fileID, crashed := id.NewFileID(), id.NewRunID()

	orphan, err := l.Begin(ctx, tally.Claim{FileID: fileID, Customer: "c-1", RunID: crashed})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	clk.Advance(11 * time.Minute)
	next := id.NewRunID()
	rec, err := l.Begin(ctx, tally.Claim{FileID: fileID, Customer: "c-1", RunID: next})
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !rec.HeldBy(next) {
		t.Errorf("reclaim: held by %s", rec.RunID)
	}

	// the original run may not confirm any more
	var integrity *tally.LedgerIntegrityError
	if err := l.Confirm(ctx, orphan, crashed, "INV-0001", "inv-1", tally.NZD(100)); !errors.As(err, &integrity) {
		t.Errorf("stale Confirm: got %v, want LedgerIntegrityError", err)
	}
}

func TestBeginRaceHasOneWinner(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	fileID := id.NewFileID()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Begin(ctx, tally.Claim{FileID: fileID, Customer: "c-1", RunID: id.NewRunID()})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, tally.ErrClaimHeld) {
				t.Errorf("Begin: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins: got %d, want 1", wins)
	}
}

func TestConfirmWithoutStoredRecord(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	run := id.NewRunID()
	rec := &ledger.Record{
		ID:       id.NewRecordID(),
		FileID:   id.NewFileID(),
		Customer: "c-7",
		Status:   ledger.StatusPending,
		RunID:    run,
	}

	err := l.Confirm(ctx, rec, run, "INV-0070", "inv-7", tally.NZD(500))
	var integrity *tally.LedgerIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("Confirm: got %v, want LedgerIntegrityError", err)
	}
	if integrity.Customer != "c-7" {
		t.Errorf("customer: got %q, want %q", integrity.Customer, "c-7")
	}
	if !errors.Is(err, tally.ErrLedgerIntegrity) {
		t.Errorf("Confirm: %v does not match ErrLedgerIntegrity", err)
	}
	if rec.Status != ledger.StatusPending {
		t.Errorf("record status: got %s, want %s", rec.Status, ledger.StatusPending)
	}
}

func TestIsProcessedForUnknownCustomer(t *testing.T) {
	l, _ := newLedger()
	done, err := l.IsProcessed(context.Background(), id.NewFileID(), "nobody")
	if err != nil || done {
		t.Errorf("got %v, %v", done, err)
	}
}

package audithook

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/types"
)

func collect() (*[]*AuditEvent, RecorderFunc) {
	var events []*AuditEvent
	return &events, func(_ context.Context, e *AuditEvent) error {
		events = append(events, e)
		return nil
	}
}

func TestInvoiceEvents(t *testing.T) {
	events, rec := collect()
	ext := New(rec)
	ctx := context.Background()

	r := &ledger.Record{
		ID:            id.NewRecordID(),
		Customer:      "c-1",
		ContactName:   "Acme Ltd",
		InvoiceNumber: "INV-0042",
		InvoiceID:     "inv-1",
		Amount:        types.NZD(2295),
	}
	_ = ext.OnInvoiceCreated(ctx, r, nil)
	_ = ext.OnInvoiceFailed(ctx, r, errors.New("502 bad gateway"))

	if len(*events) != 2 {
		t.Fatalf("events: got %d, want 2", len(*events))
	}
	created, failed := (*events)[0], (*events)[1]
	if created.Action != ActionInvoiceCreated || created.ResourceID != "inv-1" || created.Metadata["invoice_number"] != "INV-0042" {
		t.Errorf("created: got %+v", created)
	}
	if failed.Outcome != OutcomeFailure || failed.Reason != "502 bad gateway" {
		t.Errorf("failed: got %+v", failed)
	}
}

func TestRunCompletedPartial(t *testing.T) {
	events, rec := collect()
	ext := New(rec)

	_ = ext.OnRunCompleted(context.Background(), plugin.RunInfo{RunID: id.NewRunID()}, plugin.RunStats{Processed: 3, Failed: 1})
	if got := (*events)[0]; got.Outcome != OutcomePartial || got.Severity != SeverityWarning {
		t.Errorf("got %+v", got)
	}
}

func TestDisabledActions(t *testing.T) {
	events, rec := collect()
	ext := New(rec, WithDisabledActions(ActionCustomerSkipped))

	_ = ext.OnCustomerSkipped(context.Background(), plugin.RunInfo{}, "c-3", "skipped_zero_charge")
	_ = ext.OnRunStarted(context.Background(), plugin.RunInfo{RunID: id.NewRunID()})

	if len(*events) != 1 || (*events)[0].Action != ActionRunStarted {
		t.Errorf("events: got %+v", *events)
	}
}

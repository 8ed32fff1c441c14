package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/tally/accounting"
	"github.com/xraph/tally/invoice"
)

func TestCreateInvoiceDeduplicatesByKey(t *testing.T) {
	c := New(accounting.Contact{ID: "c-1", Name: "Acme Ltd"})
	ctx := context.Background()
	d := &invoice.Draft{Contact: accounting.Contact{ID: "c-1", Name: "Acme Ltd"}, IdempotencyKey: "file_1/c-1"}

	first, err := c.CreateInvoice(ctx, d)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	second, err := c.CreateInvoice(ctx, d)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	if first != second {
		t.Errorf("receipts: got %+v and %+v, want equal", first, second)
	}
	if got := len(c.Invoices()); got != 1 {
		t.Errorf("invoices: got %d, want 1", got)
	}
	if got := c.Submissions(); got != 2 {
		t.Errorf("submissions: got %d, want 2", got)
	}
}

func TestFailFor(t *testing.T) {
	c := New()
	boom := errors.New("502")
	c.FailFor("Beta Holdings", boom)

	d := &invoice.Draft{Contact: accounting.Contact{Name: "Beta Holdings"}}
	if _, err := c.CreateInvoice(context.Background(), d); !errors.Is(err, boom) {
		t.Fatalf("CreateInvoice: got %v, want %v", err, boom)
	}

	c.FailFor("Beta Holdings", nil)
	if _, err := c.CreateInvoice(context.Background(), d); err != nil {
		t.Fatalf("CreateInvoice after clear: %v", err)
	}
}

func TestFindAndCreateContact(t *testing.T) {
	c := New(accounting.Contact{ID: "c-1", Name: "Acme Ltd"})
	ctx := context.Background()

	got, err := c.FindContact(ctx, "  acme ltd ")
	if err != nil || got.ID != "c-1" {
		t.Fatalf("FindContact: got %+v, %v", got, err)
	}
	if _, err := c.FindContact(ctx, "Gamma Ltd"); !errors.Is(err, accounting.ErrContactNotFound) {
		t.Errorf("FindContact missing: got %v", err)
	}

	created, err := c.CreateContact(ctx, "Gamma Ltd")
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if found, _ := c.FindContact(ctx, "Gamma Ltd"); found == nil || found.ID != created.ID {
		t.Errorf("created contact not findable: %+v", found)
	}
}

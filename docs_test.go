package tally_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/accounting"
	acctmem "github.com/xraph/tally/accounting/memory"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
	"github.com/xraph/tally/usage"
)

// TestDocumentationExamples verifies that the package documentation
// examples run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store and accounting system for demo; use postgres and xero
		// in production
		st := memory.New()
		acct := acctmem.New(accounting.Contact{ID: "c-1", Name: "Acme Ltd"})

		tl := tally.New(st, acct,
			tally.WithLogger(slog.Default()),
			tally.WithStaleClaimAfter(15*time.Minute),
		)

		ctx := context.Background()
		if err := tl.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer tl.Stop(ctx)

		sum, err := tl.Run(ctx, tally.Report{
			Filename: "usage_2024-12-31.csv",
			Records: []usage.Record{
				{CustomerName: "Acme Ltd", Description: "National Calls (199 calls - 07:38:47)"},
			},
		})
		if err != nil {
			t.Fatal(err)
		}

		for _, r := range sum.Results {
			log.Printf("%s: %s %s %s\n", r.ContactName, r.Outcome, r.InvoiceNumber, r.Amount)
		}
		if sum.Count(tally.OutcomeProcessed) != 1 {
			t.Errorf("processed: got %d, want 1", sum.Count(tally.OutcomeProcessed))
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		m1 := types.NZD(2295) // NZ$22.95
		m2 := types.NZD(36)   // NZ$0.36

		_ = m1.Add(m2)     // NZ$23.31
		_ = m1.Multiply(2) // NZ$45.90

		if got := m1.FormatMajor(); got != "22.95" {
			t.Errorf("FormatMajor: got %q", got)
		}
	})
}

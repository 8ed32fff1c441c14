// Package tally reconciles a telecom carrier's monthly usage report against
// the customers of an accounting system and raises one draft invoice per
// customer per billing cycle.
//
// A run reads the report, turns call rows into call facts, maps usage
// names to accounting contacts, rates the calls and submits the invoices.
// Emission is gated by a persistent ledger so re-running a report never
// bills a customer twice:
//
//   - Usage normalization: "<n> calls - HH:MM:SS" descriptions become
//     typed call facts, billed per started minute
//   - Rate tables: a standard table plus per-customer overrides
//   - Identity resolution: curated overrides, then exact, then fuzzy
//     matches above a threshold
//   - Charges: standard customers get one line, multi-number customers one
//     line per number plus a monthly base fee
//   - Emission ledger: one (file, customer) record moving
//     pending → created, or pending → failed → pending on retry
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/accounting/xero"
//	    "github.com/xraph/tally/store/postgres"
//	)
//
//	st := postgres.New(db)
//	acct := xero.NewFromRefreshToken(ctx, clientID, secret, refreshToken, tenantID)
//
//	t := tally.New(st, acct, tally.WithLogger(logger))
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop(ctx)
//
//	sum, err := t.RunFile(ctx, "usage_2024-12-31.csv")
//
// Each customer's outcome is listed in the returned Summary. A customer
// whose invoice could not be created is left failed in the ledger and is
// retried by the next run of the same report.
//
// # TypeID
//
// Persisted entities use TypeIDs:
//
//	run_01h2xcejqtf2nbrexx3vqjhp41   // Run ID
//	file_01h2xcejqtf2nbrexx3vqjhp41  // Billing-cycle file ID
//	rec_01h455vb4pex5vsknk084sn02q   // Ledger record ID
package tally

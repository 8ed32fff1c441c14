// Package plugin provides an extensible plugin system for tally.
// Plugins can hook into run lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/ledger"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// RunInfo describes a billing run to plugins.
type RunInfo struct {
	RunID       id.RunID
	FileID      id.FileID
	Filename    string
	InvoiceDate time.Time
	DryRun      bool
}

// RunStats counts customer outcomes of a finished run.
type RunStats struct {
	Processed       int
	AlreadyInvoiced int
	Skipped         int
	InFlight        int
	Failed          int
	Planned         int
	Elapsed         time.Duration
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Run hooks
// ──────────────────────────────────────────────────

// OnRunStarted is called once the run's billing cycle is registered.
type OnRunStarted interface {
	Plugin
	OnRunStarted(ctx context.Context, run RunInfo) error
}

// OnRunCompleted is called after every customer of a run has an outcome.
type OnRunCompleted interface {
	Plugin
	OnRunCompleted(ctx context.Context, run RunInfo, stats RunStats) error
}

// ──────────────────────────────────────────────────
// Customer hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called after an invoice is accepted and its ledger
// record confirmed.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, rec *ledger.Record, draft *invoice.Draft) error
}

// OnInvoiceFailed is called when emission fails for a customer.
type OnInvoiceFailed interface {
	Plugin
	OnInvoiceFailed(ctx context.Context, rec *ledger.Record, err error) error
}

// OnCustomerSkipped is called for customers that are not invoiced, with
// the outcome as reason.
type OnCustomerSkipped interface {
	Plugin
	OnCustomerSkipped(ctx context.Context, run RunInfo, customer, reason string) error
}

// Package audithook bridges tally run events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any audit store. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnRunStarted      = (*Extension)(nil)
	_ plugin.OnRunCompleted    = (*Extension)(nil)
	_ plugin.OnInvoiceCreated  = (*Extension)(nil)
	_ plugin.OnInvoiceFailed   = (*Extension)(nil)
	_ plugin.OnCustomerSkipped = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audited occurrence.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges run events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Run hooks
// ──────────────────────────────────────────────────

// OnRunStarted implements plugin.OnRunStarted.
func (e *Extension) OnRunStarted(ctx context.Context, run plugin.RunInfo) error {
	return e.record(ctx, ActionRunStarted, SeverityInfo, OutcomeSuccess,
		ResourceRun, run.RunID.String(), CategoryBilling, nil,
		"file", run.Filename,
		"invoice_date", run.InvoiceDate.Format("2006-01-02"),
		"dry_run", run.DryRun,
	)
}

// OnRunCompleted implements plugin.OnRunCompleted.
func (e *Extension) OnRunCompleted(ctx context.Context, run plugin.RunInfo, stats plugin.RunStats) error {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if stats.Failed > 0 || stats.InFlight > 0 {
		outcome, severity = OutcomePartial, SeverityWarning
	}
	return e.record(ctx, ActionRunCompleted, severity, outcome,
		ResourceRun, run.RunID.String(), CategoryBilling, nil,
		"file", run.Filename,
		"processed", stats.Processed,
		"already_invoiced", stats.AlreadyInvoiced,
		"skipped", stats.Skipped,
		"in_flight", stats.InFlight,
		"failed", stats.Failed,
		"elapsed_ms", stats.Elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Customer hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, rec *ledger.Record, draft *invoice.Draft) error {
	kv := []any{
		"customer", rec.Customer,
		"contact", rec.ContactName,
		"invoice_number", rec.InvoiceNumber,
		"amount", rec.Amount.String(),
		"run_id", rec.RunID.String(),
	}
	if draft != nil {
		kv = append(kv, "reference", draft.Reference)
	}
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, rec.InvoiceID, CategoryIntegration, nil, kv...)
}

// OnInvoiceFailed implements plugin.OnInvoiceFailed.
func (e *Extension) OnInvoiceFailed(ctx context.Context, rec *ledger.Record, err error) error {
	return e.record(ctx, ActionInvoiceFailed, SeverityError, OutcomeFailure,
		ResourceInvoice, rec.ID.String(), CategoryIntegration, err,
		"customer", rec.Customer,
		"contact", rec.ContactName,
		"run_id", rec.RunID.String(),
	)
}

// OnCustomerSkipped implements plugin.OnCustomerSkipped.
func (e *Extension) OnCustomerSkipped(ctx context.Context, run plugin.RunInfo, customer, reason string) error {
	return e.record(ctx, ActionCustomerSkipped, SeverityInfo, OutcomeSuccess,
		ResourceCustomer, customer, CategoryBilling, nil,
		"file", run.Filename,
		"reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

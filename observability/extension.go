// Package observability provides a metrics extension for tally that records
// run and emission counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnInit            = (*MetricsExtension)(nil)
	_ plugin.OnRunStarted      = (*MetricsExtension)(nil)
	_ plugin.OnRunCompleted    = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated  = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceFailed   = (*MetricsExtension)(nil)
	_ plugin.OnCustomerSkipped = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records run and invoice metrics.
// Register it as a tally plugin to track billing runs.
type MetricsExtension struct {
	factory MetricFactory

	// Run metrics
	RunStarted   Counter
	RunCompleted Counter
	RunPartial   Counter
	RunDuration  Histogram

	// Customer metrics
	CustomersProcessed       Counter
	CustomersAlreadyInvoiced Counter
	CustomersInFlight        Counter
	CustomersSkipped         Counter

	// Invoice metrics
	InvoiceCreated Counter
	InvoiceFailed  Counter
	InvoiceAmount  Histogram
	InvoiceLines   Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory outside of forge.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		RunStarted:   factory.Counter("tally.run.started"),
		RunCompleted: factory.Counter("tally.run.completed"),
		RunPartial:   factory.Counter("tally.run.partial"),
		RunDuration:  factory.Histogram("tally.run.duration_ms"),

		CustomersProcessed:       factory.Counter("tally.customers.processed"),
		CustomersAlreadyInvoiced: factory.Counter("tally.customers.already_invoiced"),
		CustomersInFlight:        factory.Counter("tally.customers.in_flight"),
		CustomersSkipped:         factory.Counter("tally.customers.skipped"),

		InvoiceCreated: factory.Counter("tally.invoice.created"),
		InvoiceFailed:  factory.Counter("tally.invoice.failed"),
		InvoiceAmount:  factory.Histogram("tally.invoice.amount_cents"),
		InvoiceLines:   factory.Histogram("tally.invoice.lines"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Run hooks
// ──────────────────────────────────────────────────

// OnRunStarted implements plugin.OnRunStarted.
func (m *MetricsExtension) OnRunStarted(_ context.Context, _ plugin.RunInfo) error {
	m.RunStarted.Inc()
	return nil
}

// OnRunCompleted implements plugin.OnRunCompleted. Dry runs only count
// toward the duration histogram.
func (m *MetricsExtension) OnRunCompleted(_ context.Context, run plugin.RunInfo, stats plugin.RunStats) error {
	m.RunDuration.Observe(float64(stats.Elapsed.Milliseconds()))
	if run.DryRun {
		return nil
	}
	if stats.Failed > 0 || stats.InFlight > 0 {
		m.RunPartial.Inc()
	} else {
		m.RunCompleted.Inc()
	}
	m.CustomersProcessed.Add(float64(stats.Processed))
	m.CustomersAlreadyInvoiced.Add(float64(stats.AlreadyInvoiced))
	m.CustomersInFlight.Add(float64(stats.InFlight))
	return nil
}

// ──────────────────────────────────────────────────
// Customer hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, rec *ledger.Record, draft *invoice.Draft) error {
	m.InvoiceCreated.Inc()
	m.InvoiceAmount.Observe(float64(rec.Amount.Amount))
	if draft != nil {
		m.InvoiceLines.Observe(float64(len(draft.LineItems)))
	}
	return nil
}

// OnInvoiceFailed implements plugin.OnInvoiceFailed.
func (m *MetricsExtension) OnInvoiceFailed(_ context.Context, _ *ledger.Record, _ error) error {
	m.InvoiceFailed.Inc()
	return nil
}

// OnCustomerSkipped implements plugin.OnCustomerSkipped.
func (m *MetricsExtension) OnCustomerSkipped(_ context.Context, _ plugin.RunInfo, _, _ string) error {
	m.CustomersSkipped.Inc()
	return nil
}

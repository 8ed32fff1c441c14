package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/types"
)

func TestMetricsExtension(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(NewPrometheusFactory(reg))
	ctx := context.Background()

	_ = m.OnRunStarted(ctx, plugin.RunInfo{})
	_ = m.OnInvoiceCreated(ctx, &ledger.Record{Amount: types.NZD(2295)}, &invoice.Draft{LineItems: make([]invoice.LineItem, 1)})
	_ = m.OnInvoiceFailed(ctx, &ledger.Record{}, nil)
	_ = m.OnCustomerSkipped(ctx, plugin.RunInfo{}, "c-3", "skipped_zero_charge")
	_ = m.OnRunCompleted(ctx, plugin.RunInfo{}, plugin.RunStats{Processed: 1, Failed: 1, Elapsed: time.Second})

	tests := []struct {
		name string
		c    Counter
		want float64
	}{
		{"run started", m.RunStarted, 1},
		{"run partial", m.RunPartial, 1},
		{"run completed", m.RunCompleted, 0},
		{"invoice created", m.InvoiceCreated, 1},
		{"invoice failed", m.InvoiceFailed, 1},
		{"customers skipped", m.CustomersSkipped, 1},
		{"customers processed", m.CustomersProcessed, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c.(prometheus.Counter)); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	f := NewPrometheusFactory(prometheus.NewRegistry())
	a := f.Counter("tally.invoice.created")
	b := f.Counter("tally.invoice.created")
	a.Inc()
	if got := testutil.ToFloat64(b.(prometheus.Counter)); got != 1 {
		t.Errorf("second counter: got %v, want 1", got)
	}
}

func TestDryRunsOnlyTimed(t *testing.T) {
	m := NewMetricsExtension(NewPrometheusFactory(prometheus.NewRegistry()))
	_ = m.OnRunCompleted(context.Background(), plugin.RunInfo{DryRun: true}, plugin.RunStats{Planned: 4})
	if got := testutil.ToFloat64(m.RunCompleted.(prometheus.Counter)); got != 0 {
		t.Errorf("dry run counted as completed: %v", got)
	}
}

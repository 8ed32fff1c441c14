package tally

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/types"
	"github.com/xraph/tally/usage"
)

// Report is one carrier usage report for one billing cycle.
type Report struct {
	// Filename identifies the billing cycle; a report is registered once
	// per name.
	Filename string

	// InvoiceDate dates every invoice of the cycle. When zero it is read
	// from a "_YYYY-MM-DD.csv" suffix of Filename.
	InvoiceDate time.Time

	Records []usage.Record
}

var invoiceDatePattern = regexp.MustCompile(`_(\d{4}-\d{2}-\d{2})\.[A-Za-z]+$`)

// InvoiceDateFromFilename extracts the invoice date from names such as
// "usage_2024-12-31.csv".
func InvoiceDateFromFilename(name string) (time.Time, error) {
	m := invoiceDatePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return time.Time{}, ErrInvalidFilename
	}
	t, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return time.Time{}, ErrInvalidFilename
	}
	return t, nil
}

// Run is the state of one invocation of the pipeline. It is created by
// (*Tally).Run and never shared between runs.
type Run struct {
	ID          id.RunID
	File        *ledger.File
	InvoiceDate time.Time
	DryRun      bool
	Logger      *slog.Logger
	StartedAt   time.Time
}

func (r *Run) info() plugin.RunInfo {
	info := plugin.RunInfo{RunID: r.ID, InvoiceDate: r.InvoiceDate, DryRun: r.DryRun}
	if r.File != nil {
		info.FileID = r.File.ID
		info.Filename = r.File.Filename
	}
	return info
}

// Outcome is what happened to one customer in a run.
type Outcome string

const (
	// OutcomeProcessed means an invoice was created and confirmed.
	OutcomeProcessed Outcome = "processed"
	// OutcomeAlreadyInvoiced means an earlier run created the invoice.
	OutcomeAlreadyInvoiced Outcome = "already_invoiced"
	// OutcomeSkippedZeroCharge means the customer's charge was zero.
	OutcomeSkippedZeroCharge Outcome = "skipped_zero_charge"
	// OutcomeSkippedNoMapping means a usage name has no accounting contact.
	OutcomeSkippedNoMapping Outcome = "skipped_no_mapping"
	// OutcomeSkippedIgnored means the override table excludes the name.
	OutcomeSkippedIgnored Outcome = "skipped_ignored"
	// OutcomeInFlight means another live run holds the customer's claim.
	OutcomeInFlight Outcome = "in_flight"
	// OutcomeFailed means emission or the ledger failed for the customer.
	OutcomeFailed Outcome = "failed"
	// OutcomePlanned is a dry-run customer that would be invoiced.
	OutcomePlanned Outcome = "planned"
	// OutcomeCanceled means the run stopped before reaching the customer.
	OutcomeCanceled Outcome = "canceled"
)

// Skipped reports whether o is one of the skip outcomes.
func (o Outcome) Skipped() bool {
	return o == OutcomeSkippedZeroCharge || o == OutcomeSkippedNoMapping || o == OutcomeSkippedIgnored
}

// CustomerResult is the outcome for one customer.
type CustomerResult struct {
	Customer      string      `json:"customer"`
	ContactName   string      `json:"contact_name,omitempty"`
	UsageNames    []string    `json:"usage_names,omitempty"`
	Outcome       Outcome     `json:"outcome"`
	Amount        types.Money `json:"amount"`
	InvoiceNumber string      `json:"invoice_number,omitempty"`
	Err           error       `json:"-"`
}

// MarshalJSON renders Err as an "error" string.
func (r CustomerResult) MarshalJSON() ([]byte, error) {
	type plain CustomerResult
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Summary reports every customer of a run.
type Summary struct {
	RunID       id.RunID            `json:"run_id"`
	FileID      id.FileID           `json:"file_id"`
	Filename    string              `json:"filename"`
	InvoiceDate time.Time           `json:"invoice_date"`
	FileStatus  ledger.FileStatus   `json:"file_status,omitempty"`
	DryRun      bool                `json:"dry_run"`
	Results     []CustomerResult    `json:"results"`
	ParseErrors []*usage.ParseError `json:"-"`
	Elapsed     time.Duration       `json:"elapsed"`
}

// Count returns the number of customers with outcome o.
func (s *Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Result returns the result for customer, or nil.
func (s *Summary) Result(customer string) *CustomerResult {
	for i := range s.Results {
		if s.Results[i].Customer == customer {
			return &s.Results[i]
		}
	}
	return nil
}

// HasFailures reports whether any customer failed.
func (s *Summary) HasFailures() bool { return s.Count(OutcomeFailed) > 0 }

// Complete reports whether every billable customer reached a final state.
func (s *Summary) Complete() bool {
	for _, r := range s.Results {
		switch r.Outcome {
		case OutcomeFailed, OutcomeInFlight, OutcomeCanceled:
			return false
		}
	}
	return true
}

// Err joins the errors of every customer, or returns nil.
func (s *Summary) Err() error {
	var me MultiError
	for _, r := range s.Results {
		me.Add(r.Err)
	}
	if !me.HasErrors() {
		return nil
	}
	return me
}

func (s *Summary) stats() plugin.RunStats {
	skipped := 0
	for _, r := range s.Results {
		if r.Outcome.Skipped() {
			skipped++
		}
	}
	return plugin.RunStats{
		Processed:       s.Count(OutcomeProcessed),
		AlreadyInvoiced: s.Count(OutcomeAlreadyInvoiced),
		Skipped:         skipped,
		InFlight:        s.Count(OutcomeInFlight),
		Failed:          s.Count(OutcomeFailed),
		Planned:         s.Count(OutcomePlanned),
		Elapsed:         s.Elapsed,
	}
}

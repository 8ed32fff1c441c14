package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/xraph/tally/accounting"
	"github.com/xraph/tally/charge"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/identity"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/ledger"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/rate"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
	"github.com/xraph/tally/usage"
)

// Tally is the billing reconciliation engine.
type Tally struct {
	store      store.Store
	accounting accounting.Collaborator
	ledger     *Ledger
	plugins    *plugin.Registry
	logger     *slog.Logger

	// Configuration
	rates         *rate.Resolver
	special       []charge.MultiNumberConfig
	identity      *identity.Resolver
	billing       invoice.Settings
	createMissing bool
	staleAfter    time.Duration
	dryRun        bool
	now           func() time.Time
}

// New creates a new Tally instance over s that emits invoices to acct.
func New(s store.Store, acct accounting.Collaborator, opts ...Option) *Tally {
	t := &Tally{
		store:      s,
		accounting: acct,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		billing:    invoice.DefaultSettings(),
		staleAfter: DefaultStaleClaimAfter,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.rates == nil {
		t.rates = rate.NewResolver(nil, nil)
	}
	if t.identity == nil {
		t.identity = identity.NewResolver()
	}
	t.ledger = NewLedger(s, t.staleAfter, t.now)
	return t
}

// Option configures a Tally instance.
type Option func(*Tally)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tally) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tally) {
		_ = t.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithRates sets the rate table resolver.
func WithRates(r *rate.Resolver) Option {
	return func(t *Tally) { t.rates = r }
}

// WithSpecialCustomers configures the multi-number customers.
func WithSpecialCustomers(cfgs ...charge.MultiNumberConfig) Option {
	return func(t *Tally) { t.special = append(t.special, cfgs...) }
}

// WithIdentity sets the customer identity resolver.
func WithIdentity(r *identity.Resolver) Option {
	return func(t *Tally) { t.identity = r }
}

// WithBilling sets the invoice codes and draft defaults.
func WithBilling(s invoice.Settings) Option {
	return func(t *Tally) { t.billing = s }
}

// WithCreateMissingContacts makes the engine create accounting contacts
// for override entries that name a contact the accounting system lacks.
func WithCreateMissingContacts(enabled bool) Option {
	return func(t *Tally) { t.createMissing = enabled }
}

// WithStaleClaimAfter sets how long a pending claim blocks other runs.
func WithStaleClaimAfter(d time.Duration) Option {
	return func(t *Tally) { t.staleAfter = d }
}

// WithDryRun plans invoices without writing to the ledger or the
// accounting system.
func WithDryRun(enabled bool) Option {
	return func(t *Tally) { t.dryRun = enabled }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tally) { t.now = now }
}

// Start migrates the store and initializes plugins.
func (t *Tally) Start(ctx context.Context) error {
	if err := t.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	t.plugins.EmitInit(ctx, t)

	t.logger.Info("tally started",
		"dry_run", t.dryRun,
		"stale_claim_after", t.staleAfter,
		"special_customers", len(t.special),
	)
	return nil
}

// Stop shuts down plugins and closes the store.
func (t *Tally) Stop(ctx context.Context) error {
	t.plugins.EmitShutdown(ctx)
	return t.store.Close()
}

// Store returns the ledger store.
func (t *Tally) Store() store.Store { return t.store }

// Ledger returns the emission ledger.
func (t *Tally) Ledger() *Ledger { return t.ledger }

// Plugins returns the plugin registry.
func (t *Tally) Plugins() *plugin.Registry { return t.plugins }

// ──────────────────────────────────────────────────
// Runs
// ──────────────────────────────────────────────────

// RunFile reads the CSV report at path and runs it.
func (t *Tally) RunFile(ctx context.Context, path string) (*Summary, error) {
	recs, err := usage.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReportUnreadable, err)
	}
	return t.Run(ctx, Report{Filename: filepath.Base(path), Records: recs})
}

// Run reconciles one usage report and emits an invoice for every billable
// customer that has none for the report yet. Customer failures are
// reported in the Summary and never stop the batch; the returned error is
// reserved for failures that affect the whole run. Cancelling ctx stops
// the run between customers.
func (t *Tally) Run(ctx context.Context, rep Report) (*Summary, error) {
	if t.accounting == nil {
		return nil, ErrNoCollaborator
	}
	if rep.Filename == "" {
		return nil, ValidationError{Field: "filename", Message: "required"}
	}

	date := rep.InvoiceDate
	if date.IsZero() {
		var err error
		if date, err = InvoiceDateFromFilename(rep.Filename); err != nil {
			return nil, fmt.Errorf("%w: %s", err, rep.Filename)
		}
	}

	run := &Run{
		ID:          id.NewRunID(),
		InvoiceDate: date,
		DryRun:      t.dryRun,
		StartedAt:   t.now(),
	}
	run.Logger = t.logger.With("run_id", run.ID.String(), "file", rep.Filename)

	file, err := t.registerFile(ctx, run, rep.Filename)
	if err != nil {
		return nil, err
	}
	run.File = file

	sum := &Summary{
		RunID:       run.ID,
		Filename:    rep.Filename,
		InvoiceDate: date,
		DryRun:      run.DryRun,
	}
	if file != nil {
		sum.FileID = file.ID
	}

	t.plugins.EmitRunStarted(ctx, run.info())
	run.Logger.Info("run started", "records", len(rep.Records), "dry_run", run.DryRun)

	n := usage.NewNormalizer()
	facts := n.NormalizeAll(rep.Records)
	sum.ParseErrors = n.Failures()
	for _, pe := range sum.ParseErrors {
		run.Logger.Warn("unreadable call row", "line", pe.Line, "customer", pe.Customer, "reason", pe.Reason)
	}

	contacts, err := t.accounting.ListContacts(ctx)
	if err != nil {
		t.finish(ctx, run, sum)
		return sum, fmt.Errorf("tally: list contacts: %w", err)
	}

	customers := t.resolve(ctx, run, sum, facts, contacts)

	builder := invoice.NewBuilder(t.billing)
	groups, dropped := charge.NewAggregator(t.rates, t.special...).Aggregate(customers)
	for _, g := range dropped {
		t.skip(ctx, run, sum, CustomerResult{
			Customer:    g.Customer.Key,
			ContactName: g.Customer.Name,
			UsageNames:  g.Customer.UsageNames,
			Outcome:     OutcomeSkippedZeroCharge,
			Amount:      types.Zero(builder.Settings().Currency),
		})
	}

	for i, g := range groups {
		if ctx.Err() != nil {
			for _, rest := range groups[i:] {
				sum.Results = append(sum.Results, CustomerResult{
					Customer:    rest.Customer.Key,
					ContactName: rest.Customer.Name,
					UsageNames:  rest.Customer.UsageNames,
					Outcome:     OutcomeCanceled,
				})
			}
			break
		}
		sum.Results = append(sum.Results, t.emit(ctx, run, builder, g))
	}

	t.finish(ctx, run, sum)
	return sum, ctx.Err()
}

// registerFile returns the ledger file for name, creating it on the first
// run. Dry runs only read and return nil for an unknown file.
func (t *Tally) registerFile(ctx context.Context, run *Run, name string) (*ledger.File, error) {
	f, err := t.store.GetFileByName(ctx, name)
	switch {
	case err == nil:
		if !run.DryRun {
			if err := t.store.UpdateFileStatus(ctx, f.ID, ledger.FileProcessing); err != nil {
				return nil, err
			}
			f.Status = ledger.FileProcessing
		}
		return f, nil
	case !errors.Is(err, ErrFileNotFound):
		return nil, err
	case run.DryRun:
		return nil, nil
	}

	at := t.now().UTC()
	f = &ledger.File{
		Entity:      types.NewEntity(at),
		ID:          id.NewFileID(),
		Filename:    name,
		InvoiceDate: run.InvoiceDate,
		Status:      ledger.FileProcessing,
		ProcessedAt: at,
	}
	if err := t.store.CreateFile(ctx, f); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return t.store.GetFileByName(ctx, name)
		}
		return nil, err
	}
	return f, nil
}

// resolve maps every usage name with call facts to an accounting contact
// and merges names that share a contact into one customer.
func (t *Tally) resolve(ctx context.Context, run *Run, sum *Summary, facts []usage.CallFact, contacts []identity.Contact) []charge.Customer {
	var names []string
	byName := make(map[string][]usage.CallFact)
	for _, f := range facts {
		if _, seen := byName[f.Customer]; !seen {
			names = append(names, f.Customer)
		}
		byName[f.Customer] = append(byName[f.Customer], f)
	}

	var keys []string
	byKey := make(map[string]*charge.Customer)

	for _, name := range names {
		m := t.identity.Resolve(name, contacts)
		switch {
		case m.Source == identity.SourceIgnored:
			t.skip(ctx, run, sum, CustomerResult{Customer: name, UsageNames: []string{name}, Outcome: OutcomeSkippedIgnored})
			continue
		case !m.Resolved():
			err := m.Err()
			run.Logger.Warn("no accounting contact for usage name", "usage_name", name, "error", err)
			t.skip(ctx, run, sum, CustomerResult{Customer: name, UsageNames: []string{name}, Outcome: OutcomeSkippedNoMapping, Err: err})
			continue
		}

		contact := *m.Contact
		if contact.ID == "" {
			found, err := t.accounting.FindContact(ctx, contact.Name)
			switch {
			case err == nil:
				contact = *found
			case !errors.Is(err, accounting.ErrContactNotFound):
				run.Logger.Error("find contact failed", "contact", contact.Name, "error", err)
				sum.Results = append(sum.Results, CustomerResult{
					Customer:    name,
					ContactName: contact.Name,
					UsageNames:  []string{name},
					Outcome:     OutcomeFailed,
					Err:         &EmissionError{Customer: contact.Name, Err: err},
				})
				continue
			}
		}
		if contact.ID == "" && !run.DryRun {
			if !t.createMissing {
				err := &MissingMappingError{Name: name, Candidate: &contact}
				run.Logger.Warn("mapped contact missing from accounting system", "usage_name", name, "contact", contact.Name)
				t.skip(ctx, run, sum, CustomerResult{Customer: name, UsageNames: []string{name}, Outcome: OutcomeSkippedNoMapping, Err: err})
				continue
			}
			created, err := t.accounting.CreateContact(context.WithoutCancel(ctx), contact.Name)
			if err != nil {
				run.Logger.Error("create contact failed", "contact", contact.Name, "error", err)
				sum.Results = append(sum.Results, CustomerResult{
					Customer:    name,
					ContactName: contact.Name,
					UsageNames:  []string{name},
					Outcome:     OutcomeFailed,
					Err:         &EmissionError{Customer: contact.Name, Err: err},
				})
				continue
			}
			contact = *created
			contacts = append(contacts, contact)
			run.Logger.Info("created accounting contact", "contact", contact.Name, "contact_id", contact.ID)
		}

		run.Logger.Debug("usage name resolved",
			"usage_name", name,
			"contact", contact.Name,
			"source", m.Source,
			"confidence", m.Confidence,
		)

		key := customerKey(contact)
		c, ok := byKey[key]
		if !ok {
			c = &charge.Customer{Key: key, Name: contact.Name, ContactID: contact.ID}
			byKey[key] = c
			keys = append(keys, key)
		}
		c.UsageNames = append(c.UsageNames, name)
		c.Facts = append(c.Facts, byName[name]...)
	}

	out := make([]charge.Customer, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}

// customerKey is the ledger identity of a contact: its accounting id, or
// its normalized name while it has none.
func customerKey(c identity.Contact) string {
	if c.ID != "" {
		return c.ID
	}
	return "name:" + identity.Normalize(c.Name)
}

// emit invoices one customer. The unit runs to completion once started,
// whatever happens to ctx.
func (t *Tally) emit(ctx context.Context, run *Run, builder *invoice.Builder, g *charge.Group) CustomerResult {
	ctx = context.WithoutCancel(ctx)
	c := g.Customer
	res := CustomerResult{
		Customer:    c.Key,
		ContactName: c.Name,
		UsageNames:  c.UsageNames,
		Amount:      types.FromDecimal(g.Total, builder.Settings().Currency),
	}
	log := run.Logger.With("customer", c.Key, "contact", c.Name)

	draft, err := builder.Draft(g, identity.Contact{ID: c.ContactID, Name: c.Name}, invoice.Meta{Date: run.InvoiceDate})
	if errors.Is(err, invoice.ErrZeroAmount) {
		res.Outcome = OutcomeSkippedZeroCharge
		t.plugins.EmitCustomerSkipped(ctx, run.info(), c.Key, string(res.Outcome))
		return res
	}
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	res.Amount = draft.Total()

	if run.DryRun {
		res.Outcome = OutcomePlanned
		if run.File != nil {
			done, err := t.ledger.IsProcessed(ctx, run.File.ID, c.Key)
			if err != nil {
				res.Outcome, res.Err = OutcomeFailed, err
				return res
			}
			if done {
				res.Outcome = OutcomeAlreadyInvoiced
			}
		}
		log.Info("invoice planned", "amount", res.Amount.String(), "outcome", res.Outcome, "lines", len(draft.LineItems))
		return res
	}

	draft.IdempotencyKey = run.File.ID.String() + "/" + c.Key

	rec, err := t.ledger.Begin(ctx, Claim{
		FileID:      run.File.ID,
		Customer:    c.Key,
		RunID:       run.ID,
		ContactName: c.Name,
		UsageNames:  c.UsageNames,
	})
	switch {
	case errors.Is(err, ErrClaimHeld):
		log.Info("customer claimed by another run", "holder", rec.RunID.String())
		res.Outcome, res.Err = OutcomeInFlight, err
		return res
	case err != nil:
		log.Error("ledger begin failed", "error", err)
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	case rec.Status == ledger.StatusCreated:
		log.Info("customer already invoiced", "invoice_number", rec.InvoiceNumber)
		res.Outcome = OutcomeAlreadyInvoiced
		res.InvoiceNumber = rec.InvoiceNumber
		res.Amount = rec.Amount
		return res
	}

	receipt, err := t.accounting.CreateInvoice(ctx, draft)
	if err != nil {
		emErr := &EmissionError{Customer: c.Name, Err: err}
		res.Outcome, res.Err = OutcomeFailed, emErr
		if ferr := t.ledger.Fail(ctx, rec, run.ID, err); ferr != nil {
			log.Error("ledger fail transition failed", "error", ferr)
			res.Err = errors.Join(emErr, ferr)
		}
		log.Warn("invoice emission failed", "amount", res.Amount.String(), "error", err)
		t.plugins.EmitInvoiceFailed(ctx, rec, emErr)
		return res
	}
	res.InvoiceNumber = receipt.InvoiceNumber

	if err := t.ledger.Confirm(ctx, rec, run.ID, receipt.InvoiceNumber, receipt.InvoiceID, res.Amount); err != nil {
		log.Error("invoice created but ledger not confirmed",
			"invoice_number", receipt.InvoiceNumber,
			"error", err,
		)
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	log.Info("invoice created", "invoice_number", receipt.InvoiceNumber, "amount", res.Amount.String())
	t.plugins.EmitInvoiceCreated(ctx, rec, draft)
	res.Outcome = OutcomeProcessed
	return res
}

func (t *Tally) skip(ctx context.Context, run *Run, sum *Summary, res CustomerResult) {
	sum.Results = append(sum.Results, res)
	t.plugins.EmitCustomerSkipped(ctx, run.info(), res.Customer, string(res.Outcome))
}

// finish records the file status and reports the run.
func (t *Tally) finish(ctx context.Context, run *Run, sum *Summary) {
	ctx = context.WithoutCancel(ctx)
	sum.Elapsed = t.now().Sub(run.StartedAt)

	if !run.DryRun && run.File != nil {
		status := ledger.FileCompleted
		if !sum.Complete() {
			status = ledger.FilePartial
		}
		if err := t.store.UpdateFileStatus(ctx, run.File.ID, status); err != nil {
			run.Logger.Error("update file status failed", "status", status, "error", err)
		} else {
			run.File.Status = status
			sum.FileStatus = status
		}
	}

	stats := sum.stats()
	t.plugins.EmitRunCompleted(ctx, run.info(), stats)
	run.Logger.Info("run completed",
		"processed", stats.Processed,
		"already_invoiced", stats.AlreadyInvoiced,
		"skipped", stats.Skipped,
		"in_flight", stats.InFlight,
		"failed", stats.Failed,
		"planned", stats.Planned,
		"elapsed_ms", stats.Elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Ledger inspection
// ──────────────────────────────────────────────────

// ListFiles returns registered billing-cycle files, newest first.
func (t *Tally) ListFiles(ctx context.Context, opts ledger.FileListOpts) ([]*ledger.File, error) {
	return t.store.ListFiles(ctx, opts)
}

// ListRecords returns the ledger records of the named file.
func (t *Tally) ListRecords(ctx context.Context, filename string, opts ledger.ListOpts) ([]*ledger.Record, error) {
	f, err := t.store.GetFileByName(ctx, filename)
	if err != nil {
		return nil, err
	}
	return t.store.ListRecords(ctx, f.ID, opts)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/tally"
	"github.com/xraph/tally/accounting"
	acctmem "github.com/xraph/tally/accounting/memory"
	"github.com/xraph/tally/accounting/xero"
	"github.com/xraph/tally/config"
	"github.com/xraph/tally/identity"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/sqldb"
)

type globals struct {
	configPath string
	mapping    string
	jsonLogs   bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "tally",
		Short:         "Reconcile carrier usage reports into accounting invoices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.mapping, "mapping", "", "customer mapping CSV (usage_name,accounting_name)")
	root.PersistentFlags().BoolVar(&g.jsonLogs, "json-logs", false, "log as JSON")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newLedgerCmd(g))
	return root
}

// load reads the configuration and applies the persistent flags.
func (g *globals) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.mapping != "" {
		cfg.Identity.Mapping = g.mapping
	}

	hopts := &slog.HandlerOptions{Level: cfg.Level()}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if g.jsonLogs {
		h = slog.NewJSONHandler(os.Stderr, hopts)
	}
	return cfg, slog.New(h), nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return sqldb.Open(cfg.Store.DSN)
	case config.DriverMemory:
		logger.Warn("using the in-memory ledger; re-running this report later will not see this run")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openAccounting returns the Xero client, or an in-memory accounting
// system seeded with the mapped contacts when xero.simulate is set.
func openAccounting(ctx context.Context, cfg *config.Config, logger *slog.Logger) (accounting.Collaborator, error) {
	if cfg.Xero.Simulate {
		if cfg.Store.Driver != config.DriverMemory {
			return nil, fmt.Errorf("xero.simulate needs the memory store, got %q: simulated invoices would be recorded as created", cfg.Store.Driver)
		}
		logger.Warn("simulating the accounting system; no invoices reach xero")
		return simulated(cfg)
	}
	if !cfg.Xero.Configured() {
		return nil, fmt.Errorf("xero credentials missing: set %s, %s and %s, or xero.simulate: true",
			config.EnvXeroClientID, config.EnvXeroRefreshToken, config.EnvXeroTenantID)
	}

	opts := []xero.Option{xero.WithLogger(logger)}
	if cfg.Xero.BaseURL != "" {
		opts = append(opts, xero.WithBaseURL(cfg.Xero.BaseURL))
	}
	if d := cfg.Xero.RequestTimeout(); d > 0 {
		opts = append(opts, xero.WithTimeout(d))
	}
	return xero.NewFromRefreshToken(ctx,
		cfg.Xero.ClientID, cfg.Xero.ClientSecret, cfg.Xero.RefreshToken, cfg.Xero.TenantID,
		opts...), nil
}

// offline is the collaborator of the ledger commands, which never invoice.
func offline(context.Context, *config.Config, *slog.Logger) (accounting.Collaborator, error) {
	return acctmem.New(), nil
}

func simulated(cfg *config.Config) (accounting.Collaborator, error) {
	if cfg.Identity.Mapping == "" {
		return acctmem.New(), nil
	}
	o, err := identity.LoadOverridesFile(cfg.Identity.Mapping)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var contacts []accounting.Contact
	for _, e := range o.Entries() {
		if e.Ignore || seen[identity.Normalize(e.AccountingName)] {
			continue
		}
		seen[identity.Normalize(e.AccountingName)] = true
		contacts = append(contacts, accounting.Contact{
			ID:   fmt.Sprintf("sim-%d", len(contacts)+1),
			Name: e.AccountingName,
		})
	}
	return acctmem.New(contacts...), nil
}

// engine builds and starts a Tally from the configuration.
func (g *globals) engine(ctx context.Context, extra ...tally.Option) (*tally.Tally, *slog.Logger, error) {
	return g.build(ctx, openAccounting, extra...)
}

// ledgerEngine builds a Tally for reading the ledger.
func (g *globals) ledgerEngine(ctx context.Context) (*tally.Tally, *slog.Logger, error) {
	return g.build(ctx, offline)
}

type accountingOpener func(context.Context, *config.Config, *slog.Logger) (accounting.Collaborator, error)

func (g *globals) build(ctx context.Context, openAcct accountingOpener, extra ...tally.Option) (*tally.Tally, *slog.Logger, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, nil, err
	}

	acct, err := openAcct(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, tally.WithLogger(logger))
	opts = append(opts, extra...)

	s, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	t := tally.New(s, acct, opts...)
	if err := t.Start(ctx); err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return t, logger, nil
}

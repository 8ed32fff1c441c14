package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tally"
	"github.com/xraph/tally/accounting"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/store"
)

// Option configures the tally Forge extension.
type Option func(*Extension)

// WithStore sets the ledger store.
func WithStore(s store.Store) Option {
	return func(e *Extension) { e.store = s }
}

// WithGroveDB builds the ledger store on db. driver is "pg", "sqlite" or
// "mongo" and must match the driver db was opened with.
func WithGroveDB(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		e.config.GroveDriver = driver
	}
}

// WithCollaborator sets the accounting system invoices are emitted to.
func WithCollaborator(c accounting.Collaborator) Option {
	return func(e *Extension) { e.accounting = c }
}

// WithTallyOption passes a tally.Option through to the underlying engine.
func WithTallyOption(opt tally.Option) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, opt)
	}
}

// WithPlugin registers a tally plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, tally.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithStaleClaimAfter sets how long a pending claim blocks other runs.
func WithStaleClaimAfter(d time.Duration) Option {
	return func(e *Extension) { e.config.StaleClaimAfter = d }
}

// WithDryRun makes every run a simulation.
func WithDryRun() Option {
	return func(e *Extension) { e.config.DryRun = true }
}

// WithCreateMissingContacts enables contact creation for mapped customers.
func WithCreateMissingContacts() Option {
	return func(e *Extension) { e.config.CreateMissingContacts = true }
}

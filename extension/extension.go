// Package extension provides the Forge extension adapter for tally.
//
// It implements the forge.Extension interface to integrate the billing
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tally" or "tally" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/tally"
	"github.com/xraph/tally/accounting"
	acctmem "github.com/xraph/tally/accounting/memory"
	"github.com/xraph/tally/identity"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/mongo"
	"github.com/xraph/tally/store/postgres"
	"github.com/xraph/tally/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tally"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Telecom usage billing reconciliation"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts tally as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *tally.Tally
	store      store.Store
	groveDB    *grove.DB
	accounting accounting.Collaborator
	tallyOpts  []tally.Option
}

// New creates a new tally Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine. It is nil until Register is called.
func (e *Extension) Engine() *tally.Tally { return e.engine }

// Register implements [forge.Extension]. It loads configuration, builds
// the store and the engine, and registers the engine in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.resolveStore(); err != nil {
		return err
	}

	if e.accounting == nil {
		if needsCollaborator(e.store) {
			return errors.New("tally: a durable store needs an accounting collaborator; use WithCollaborator")
		}
		e.Logger().Warn("tally: no accounting collaborator configured; invoices go to an in-memory system")
		e.accounting = acctmem.New()
	}

	e.engine = tally.New(e.store, e.accounting, e.buildTallyOpts()...)

	return vessel.Provide(fapp.Container(), func() (*tally.Tally, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tally: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	defer e.MarkStopped()
	if e.engine != nil {
		return e.engine.Stop(ctx)
	}
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tally: store not initialized")
	}
	return e.store.Ping(ctx)
}

// resolveStore picks the programmatic store, then a grove-backed one, then
// the in-memory store.
func (e *Extension) resolveStore() error {
	if e.store != nil {
		return nil
	}
	if e.groveDB == nil {
		e.Logger().Warn("tally: no store configured; the ledger will not survive a restart")
		e.store = memory.New()
		return nil
	}

	switch e.config.GroveDriver {
	case "pg", "postgres":
		e.store = postgres.New(e.groveDB)
	case "sqlite":
		e.store = sqlite.New(e.groveDB)
	case "mongo":
		e.store = mongo.New(e.groveDB)
	default:
		return fmt.Errorf("tally: unknown grove driver %q", e.config.GroveDriver)
	}
	e.Logger().Debug("tally: using grove store", forge.F("driver", e.config.GroveDriver))
	return nil
}

// needsCollaborator reports whether s outlives the process, so simulated
// invoices would be recorded as created for good.
func needsCollaborator(s store.Store) bool {
	_, inMemory := s.(*memory.Store)
	return !inMemory
}

// buildTallyOpts constructs tally.Option values from the resolved config.
// Pass-through options come last so they win.
func (e *Extension) buildTallyOpts() []tally.Option {
	opts := make([]tally.Option, 0, len(e.tallyOpts)+4)

	opts = append(opts,
		tally.WithStaleClaimAfter(e.config.StaleClaimAfter),
		tally.WithDryRun(e.config.DryRun),
		tally.WithCreateMissingContacts(e.config.CreateMissingContacts),
		tally.WithIdentity(identity.NewResolver(identity.WithThreshold(e.config.IdentityThreshold))),
	)

	return append(opts, e.tallyOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tally: configuration is required but not found in config files; " +
				"ensure 'extensions.tally' or 'tally' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tally: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("stale_claim_after", e.config.StaleClaimAfter),
		forge.F("identity_threshold", e.config.IdentityThreshold),
		forge.F("dry_run", e.config.DryRun),
		forge.F("grove_driver", e.config.GroveDriver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.tally", "tally"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("tally: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("tally: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.StaleClaimAfter == 0 {
		cfg.StaleClaimAfter = defaults.StaleClaimAfter
	}
	if cfg.IdentityThreshold == 0 {
		cfg.IdentityThreshold = defaults.IdentityThreshold
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML takes precedence; programmatic values fill gaps and true bool flags
// always apply.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DryRun {
		yamlConfig.DryRun = true
	}
	if programmaticConfig.CreateMissingContacts {
		yamlConfig.CreateMissingContacts = true
	}

	if yamlConfig.GroveDriver == "" {
		yamlConfig.GroveDriver = programmaticConfig.GroveDriver
	}
	if yamlConfig.StaleClaimAfter == 0 {
		yamlConfig.StaleClaimAfter = programmaticConfig.StaleClaimAfter
	}
	if yamlConfig.IdentityThreshold == 0 {
		yamlConfig.IdentityThreshold = programmaticConfig.IdentityThreshold
	}

	return mergeWithDefaults(yamlConfig)
}

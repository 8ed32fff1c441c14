package extension

import "time"

// Config holds the tally extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tally" or "tally" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// StaleClaimAfter is how long a pending emission claim blocks other
	// runs before it may be reclaimed (default: 30m).
	StaleClaimAfter time.Duration `json:"stale_claim_after" mapstructure:"stale_claim_after" yaml:"stale_claim_after"`

	// IdentityThreshold is the fuzzy-match score a contact must exceed
	// (default: 80).
	IdentityThreshold int `json:"identity_threshold" mapstructure:"identity_threshold" yaml:"identity_threshold"`

	// DryRun plans invoices without writing to the ledger or the
	// accounting system.
	DryRun bool `json:"dry_run" mapstructure:"dry_run" yaml:"dry_run"`

	// CreateMissingContacts creates accounting contacts named by the
	// mapping file when they do not exist yet.
	CreateMissingContacts bool `json:"create_missing_contacts" mapstructure:"create_missing_contacts" yaml:"create_missing_contacts"`

	// GroveDriver names the driver of the grove.DB passed with WithGroveDB:
	// "pg", "sqlite" or "mongo".
	GroveDriver string `json:"grove_driver" mapstructure:"grove_driver" yaml:"grove_driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StaleClaimAfter:   30 * time.Minute,
		IdentityThreshold: 80,
	}
}

// Package config loads the tally CLI configuration from a YAML file and
// the process environment.
//
// Secrets never live in the YAML file. Xero credentials and the database
// DSN are read from the environment, after any .env file in the working
// directory has been loaded.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"

	"github.com/xraph/tally"
	"github.com/xraph/tally/charge"
	"github.com/xraph/tally/identity"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/rate"
	"github.com/xraph/tally/usage"
)

// Environment variables read by Load.
const (
	EnvDatabaseURL       = "TALLY_DATABASE_URL"
	EnvXeroClientID      = "XERO_CLIENT_ID"
	EnvXeroClientSecret  = "XERO_CLIENT_SECRET"
	EnvXeroRefreshToken  = "XERO_REFRESH_TOKEN"
	EnvXeroTenantID      = "XERO_TENANT_ID"
	EnvLogLevel          = "TALLY_LOG_LEVEL"
	defaultStaleDuration = "PT30M"
)

// Store drivers. Grove-backed stores (sqlite, mongo) are wired through
// the Forge extension, which receives its database from the host.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the tally CLI configuration.
type Config struct {
	Store    Store            `yaml:"store"`
	Xero     Xero             `yaml:"xero"`
	Billing  invoice.Settings `yaml:"billing"`
	Identity Identity         `yaml:"identity"`
	Rates    Rates            `yaml:"rates"`

	SpecialCustomers []charge.MultiNumberConfig `yaml:"special_customers"`

	// StaleClaimAfter is an ISO-8601 duration, e.g. "PT30M".
	StaleClaimAfter       string `yaml:"stale_claim_after"`
	CreateMissingContacts bool   `yaml:"create_missing_contacts"`
	DryRun                bool   `yaml:"dry_run"`
	LogLevel              string `yaml:"log_level"`

	staleAfter time.Duration
	level      slog.Level
	resolver   *rate.Resolver
}

// Store selects the ledger backend.
type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Xero configures the accounting collaborator. Simulate sends runs to an
// in-memory accounting system and is only allowed with the memory store.
type Xero struct {
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
	Simulate   bool   `yaml:"simulate"`

	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
	RefreshToken string `yaml:"-"`
	TenantID     string `yaml:"-"`

	timeout time.Duration
}

// RequestTimeout returns the parsed Timeout, zero when unset.
func (x Xero) RequestTimeout() time.Duration { return x.timeout }

// Configured reports whether live Xero credentials are present.
func (x Xero) Configured() bool {
	return x.ClientID != "" && x.RefreshToken != "" && x.TenantID != ""
}

// Identity configures customer matching.
type Identity struct {
	Threshold int    `yaml:"threshold"`
	Mapping   string `yaml:"mapping"`
}

// Rates holds the standard table and per-customer overrides. Rates are
// decimal strings keyed by call type; "other" prices unlisted types.
type Rates struct {
	Standard  map[string]string `yaml:"standard"`
	Overrides []RateOverride    `yaml:"overrides"`
}

// RateOverride assigns a customer a non-standard table. Tier "tollfree"
// starts from the toll-free table; any other tier starts from standard.
type RateOverride struct {
	Customer string            `yaml:"customer"`
	Tier     string            `yaml:"tier"`
	Rates    map[string]string `yaml:"rates"`
	BaseFee  string            `yaml:"base_fee"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	tsc := charge.MultiNumberConfig{
		Name:               "The Service Company",
		AccountCode:        "43850",
		PrimaryNumber:      "6492003366",
		TollFreePrefix:     "64800",
		BaseFeeDescription: "Monthly Charges for Toll Free Numbers (0800 366080, 650252, 753753)",
	}
	return &Config{
		Store:            Store{Driver: DriverMemory},
		Billing:          invoice.DefaultSettings(),
		Identity:         Identity{Threshold: identity.DefaultThreshold},
		Rates:            Rates{Overrides: []RateOverride{{Customer: tsc.Name, Tier: "tollfree"}}},
		SpecialCustomers: []charge.MultiNumberConfig{tsc},
		StaleClaimAfter:  defaultStaleDuration,
		LogLevel:         "info",
	}
}

// Load reads path over Default, applies the environment and validates the
// result. An empty path loads only defaults and environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	c.Xero.ClientID = os.Getenv(EnvXeroClientID)
	c.Xero.ClientSecret = os.Getenv(EnvXeroClientSecret)
	c.Xero.RefreshToken = os.Getenv(EnvXeroRefreshToken)
	c.Xero.TenantID = os.Getenv(EnvXeroTenantID)
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			result = multierror.Append(result, fmt.Errorf("store.dsn: required for driver %q (or set %s)", c.Store.Driver, EnvDatabaseURL))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}

	if d, err := parseDuration("stale_claim_after", c.StaleClaimAfter); err != nil {
		result = multierror.Append(result, err)
	} else if d <= 0 {
		result = multierror.Append(result, errors.New("stale_claim_after: must be positive"))
	} else {
		c.staleAfter = d
	}

	if c.Xero.Timeout != "" {
		if d, err := parseDuration("xero.timeout", c.Xero.Timeout); err != nil {
			result = multierror.Append(result, err)
		} else {
			c.Xero.timeout = d
		}
	}

	if err := c.level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		result = multierror.Append(result, fmt.Errorf("log_level: %w", err))
	}

	if c.Identity.Threshold < 0 || c.Identity.Threshold > 100 {
		result = multierror.Append(result, fmt.Errorf("identity.threshold: %d not in [0,100]", c.Identity.Threshold))
	}
	if c.Billing.DueDays < 0 {
		result = multierror.Append(result, errors.New("billing.due_days: must not be negative"))
	}

	for i, sc := range c.SpecialCustomers {
		if strings.TrimSpace(sc.Name) == "" || sc.PrimaryNumber == "" || sc.TollFreePrefix == "" {
			result = multierror.Append(result,
				fmt.Errorf("special_customers[%d]: name, primary_number and tollfree_prefix are required", i))
		}
	}

	resolver, err := c.buildRates()
	if err != nil {
		result = multierror.Append(result, err)
	}
	c.resolver = resolver

	if resolver != nil {
		for i, sc := range c.SpecialCustomers {
			if strings.TrimSpace(sc.Name) == "" {
				continue
			}
			t := resolver.Resolve(sc.Name)
			_, tollFree := t.Rates[usage.CallTollFreeMobile]
			if t.Kind != rate.KindOverride || !t.HasBaseFee() || !tollFree {
				result = multierror.Append(result,
					fmt.Errorf("special_customers[%d]: %q needs a tollfree rates.overrides entry with a base fee", i, sc.Name))
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an ISO-8601 duration: %w", field, s, err)
	}
	return d.ToTimeDuration(), nil
}

func (c *Config) buildRates() (*rate.Resolver, error) {
	var result *multierror.Error

	standard := rate.Standard()
	if err := applyRates(standard, c.Rates.Standard); err != nil {
		result = multierror.Append(result, fmt.Errorf("rates.standard: %w", err))
	}

	overrides := make(map[string]*rate.Table, len(c.Rates.Overrides))
	for i, o := range c.Rates.Overrides {
		if strings.TrimSpace(o.Customer) == "" {
			result = multierror.Append(result, fmt.Errorf("rates.overrides[%d]: customer required", i))
			continue
		}
		var t *rate.Table
		switch o.Tier {
		case "tollfree":
			t = rate.TollFree(o.Customer)
		case "", "standard":
			t = rate.Standard()
			t.Name, t.Kind = o.Customer, rate.KindOverride
		default:
			result = multierror.Append(result, fmt.Errorf("rates.overrides[%d]: unknown tier %q", i, o.Tier))
			continue
		}
		if err := applyRates(t, o.Rates); err != nil {
			result = multierror.Append(result, fmt.Errorf("rates.overrides[%d]: %w", i, err))
		}
		if o.BaseFee != "" {
			fee, err := decimal.NewFromString(o.BaseFee)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("rates.overrides[%d].base_fee: %w", i, err))
			}
			t.BaseFee = fee
		}
		if err := t.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
		overrides[o.Customer] = t
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rate.NewResolver(standard, overrides), nil
}

func applyRates(t *rate.Table, rates map[string]string) error {
	var result *multierror.Error
	for k, v := range rates {
		r, err := decimal.NewFromString(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", k, err))
			continue
		}
		key := usage.CallType(strings.ToLower(strings.TrimSpace(k)))
		switch {
		case key == "other":
			t.Other = r
		case key == "base_fee":
			t.BaseFee = r
		case isCallType(key):
			t.Rates[key] = r
		default:
			result = multierror.Append(result, fmt.Errorf("unknown call type %q", k))
		}
	}
	return result.ErrorOrNil()
}

func isCallType(c usage.CallType) bool {
	for _, known := range usage.CallTypes {
		if known == c {
			return true
		}
	}
	return false
}

// StaleAfter returns the parsed stale claim window.
func (c *Config) StaleAfter() time.Duration { return c.staleAfter }

// Level returns the parsed log level.
func (c *Config) Level() slog.Level { return c.level }

// RateResolver returns the validated rate tables.
func (c *Config) RateResolver() *rate.Resolver { return c.resolver }

// Options turns the configuration into engine options. It reads the
// identity mapping file when one is configured.
func (c *Config) Options() ([]tally.Option, error) {
	idOpts := []identity.Option{identity.WithThreshold(c.Identity.Threshold)}
	if c.Identity.Mapping != "" {
		o, err := identity.LoadOverridesFile(c.Identity.Mapping)
		if err != nil {
			return nil, fmt.Errorf("config: mapping: %w", err)
		}
		idOpts = append(idOpts, identity.WithOverrides(o))
	}

	return []tally.Option{
		tally.WithRates(c.resolver),
		tally.WithSpecialCustomers(c.SpecialCustomers...),
		tally.WithIdentity(identity.NewResolver(idOpts...)),
		tally.WithBilling(c.Billing),
		tally.WithCreateMissingContacts(c.CreateMissingContacts),
		tally.WithStaleClaimAfter(c.staleAfter),
		tally.WithDryRun(c.DryRun),
	}, nil
}

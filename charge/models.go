// Package charge rates call facts and groups them into per-customer charges.
package charge

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/tally/rate"
	"github.com/xraph/tally/usage"
)

// Kind tags how a customer is billed.
type Kind string

const (
	KindStandard    Kind = "standard"
	KindMultiNumber Kind = "multi_number"
)

// Customer is one accounting contact with every usage-report name that
// resolved to it and the call facts of those names.
type Customer struct {
	Key        string           `json:"key"`
	Name       string           `json:"name"`
	ContactID  string           `json:"contact_id"`
	UsageNames []string         `json:"usage_names"`
	Facts      []usage.CallFact `json:"facts"`
}

// Subtotal aggregates the facts of one call type.
type Subtotal struct {
	Type            usage.CallType  `json:"type"`
	Count           int64           `json:"count"`
	DurationSeconds int64           `json:"duration_seconds"`
	Minutes         int64           `json:"minutes"`
	Rate            decimal.Decimal `json:"rate"`
	Amount          decimal.Decimal `json:"amount"`
}

// SubAccount is one phone number of a multi-number customer.
type SubAccount struct {
	Number    string          `json:"number"`
	Subtotals []Subtotal      `json:"subtotals"`
	Total     decimal.Decimal `json:"total"`
}

// Calls returns the number of calls across all subtotals.
func (s *SubAccount) Calls() int64 { return totalCalls(s.Subtotals) }

// Group is the charge for one customer in one billing cycle.
//
// Total is the amount the invoice will carry. For standard customers it is
// the sum of per-fact charges rounded to two places. For multi-number
// customers it is the base fee plus each sub-account total, each of which
// is rounded on its own.
type Group struct {
	Customer    Customer        `json:"customer"`
	Kind        Kind            `json:"kind"`
	Table       *rate.Table     `json:"-"`
	Subtotals   []Subtotal      `json:"subtotals,omitempty"`
	SubAccounts []*SubAccount   `json:"sub_accounts,omitempty"`
	BaseFee     decimal.Decimal `json:"base_fee"`
	Total       decimal.Decimal `json:"total"`

	// MultiNumber holds the special-customer settings; nil for standard
	// customers.
	MultiNumber *MultiNumberConfig `json:"multi_number,omitempty"`
}

// IsZero reports whether the group charges nothing.
func (g *Group) IsZero() bool { return g.Total.IsZero() }

// MultiNumberConfig describes a special customer that carries several
// phone numbers under one accounting contact.
type MultiNumberConfig struct {
	// Name is the usage-report customer name, matched exactly after
	// trimming. Case is significant.
	Name string `json:"name" yaml:"name"`

	// AccountCode tags every line item of the customer.
	AccountCode string `json:"account_code" yaml:"account_code"`

	// PrimaryNumber receives all traffic not on a toll-free number.
	PrimaryNumber string `json:"primary_number" yaml:"primary_number"`

	// TollFreePrefix identifies toll-free sub-account numbers.
	TollFreePrefix string `json:"tollfree_prefix" yaml:"tollfree_prefix"`

	// BaseFeeDescription is the text of the base-fee line item.
	BaseFeeDescription string `json:"base_fee_description" yaml:"base_fee_description"`
}

func totalCalls(subs []Subtotal) int64 {
	var n int64
	for _, s := range subs {
		n += s.Count
	}
	return n
}

// Round rounds an amount to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

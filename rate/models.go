// Package rate holds per-minute rate tables and resolves which one applies
// to a customer.
package rate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/usage"
)

type Kind string

const (
	KindStandard Kind = "standard"
	KindOverride Kind = "override"
)

// Table maps call types to a per-minute rate. Every table carries an
// explicit Other rate used for call types it does not list.
type Table struct {
	Name    string                             `json:"name"`
	Kind    Kind                               `json:"kind"`
	Rates   map[usage.CallType]decimal.Decimal `json:"rates"`
	Other   decimal.Decimal                    `json:"other"`
	BaseFee decimal.Decimal                    `json:"base_fee"`
}

// Rate returns the per-minute rate for c.
func (t *Table) Rate(c usage.CallType) decimal.Decimal {
	if r, ok := t.Rates[c]; ok {
		return r
	}
	return t.Other
}

// HasBaseFee reports whether the table carries a per-cycle base fee.
func (t *Table) HasBaseFee() bool { return t.BaseFee.IsPositive() }

// Validate rejects negative rates and fees.
func (t *Table) Validate() error {
	if t.Other.IsNegative() {
		return fmt.Errorf("rate: table %q: negative other rate", t.Name)
	}
	if t.BaseFee.IsNegative() {
		return fmt.Errorf("rate: table %q: negative base fee", t.Name)
	}
	for c, r := range t.Rates {
		if r.IsNegative() {
			return fmt.Errorf("rate: table %q: negative rate for %s", t.Name, c)
		}
	}
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Standard returns the default table applied to every customer without an
// override.
func Standard() *Table {
	return &Table{
		Name: "standard",
		Kind: KindStandard,
		Rates: map[usage.CallType]decimal.Decimal{
			usage.CallLocal:         d("0.05"),
			usage.CallMobile:        d("0.12"),
			usage.CallNational:      d("0.05"),
			usage.CallInternational: d("0.14"),
		},
		Other: d("0.14"),
	}
}

// TollFree returns the toll-free inbound tier with a $55.00 monthly base fee.
// Outbound call types are priced as Standard.
func TollFree(name string) *Table {
	t := Standard()
	t.Name = name
	t.Kind = KindOverride
	t.Rates[usage.CallTollFreeMobile] = d("0.28")
	t.Rates[usage.CallTollFreeNational] = d("0.10")
	t.Rates[usage.CallTollFreeOther] = d("0.14")
	t.Other = d("0.14")
	t.BaseFee = d("55.00")
	return t
}

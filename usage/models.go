// Package usage turns carrier usage-report rows into structured call facts.
package usage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one row of the carrier's usage report.
type Record struct {
	CustomerName  string          `json:"customer_name"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Quantity      decimal.Decimal `json:"quantity"`
	ServiceNumber string          `json:"service_number,omitempty"`
	ProductType   string          `json:"product_type,omitempty"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	Line          int             `json:"line"`
}

// CallType classifies a call for rating.
type CallType string

const (
	CallLocal            CallType = "local"
	CallMobile           CallType = "mobile"
	CallNational         CallType = "national"
	CallInternational    CallType = "international"
	CallTollFreeMobile   CallType = "tollfree_mobile"
	CallTollFreeNational CallType = "tollfree_national"
	CallTollFreeOther    CallType = "tollfree_other"
	CallOther            CallType = "other"
)

// CallTypes lists every call type in display order.
var CallTypes = []CallType{
	CallLocal, CallMobile, CallNational, CallInternational,
	CallTollFreeMobile, CallTollFreeNational, CallTollFreeOther, CallOther,
}

// Label returns the human-readable name used on invoices.
func (c CallType) Label() string {
	switch c {
	case CallLocal:
		return "Local"
	case CallMobile:
		return "Mobile"
	case CallNational:
		return "National"
	case CallInternational:
		return "Australia/International"
	case CallTollFreeMobile:
		return "TFree Inbound - Mobile"
	case CallTollFreeNational:
		return "TFree Inbound - National"
	case CallTollFreeOther:
		return "TFree Inbound - Other"
	default:
		return "Other"
	}
}

// IsTollFree reports whether c is one of the inbound toll-free tiers.
func (c CallType) IsTollFree() bool {
	return c == CallTollFreeMobile || c == CallTollFreeNational || c == CallTollFreeOther
}

// CallFact is the structured reading of one call row. It is never mutated
// after the Normalizer creates it.
type CallFact struct {
	Type            CallType `json:"type"`
	Count           int64    `json:"count"`
	DurationSeconds int64    `json:"duration_seconds"`
	Customer        string   `json:"customer"`
	SubAccount      string   `json:"sub_account,omitempty"`
}

// Minutes returns the billable minutes for the fact.
func (f CallFact) Minutes() int64 { return Minutes(f.DurationSeconds) }

// Minutes converts seconds to billable minutes. Any partial minute is billed
// as a whole one.
func Minutes(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

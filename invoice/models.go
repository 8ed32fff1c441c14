// Package invoice builds the draft invoices tally submits to the accounting
// system.
package invoice

import (
	"time"

	"github.com/xraph/tally/identity"
	"github.com/xraph/tally/types"
)

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusAuthorised Status = "AUTHORISED"
)

type Type string

const (
	// TypeReceivable is a sales invoice (accounts receivable).
	TypeReceivable Type = "ACCREC"
)

// AmountTypes says whether line amounts include tax.
type AmountTypes string

const (
	AmountsExclusive AmountTypes = "Exclusive"
	AmountsInclusive AmountTypes = "Inclusive"
)

// Draft is an invoice ready to submit.
type Draft struct {
	Contact     identity.Contact `json:"contact"`
	Type        Type             `json:"type"`
	Status      Status           `json:"status"`
	AmountTypes AmountTypes      `json:"amount_types"`
	Date        time.Time        `json:"date"`
	DueDate     time.Time        `json:"due_date"`
	Reference   string           `json:"reference"`
	Currency    string           `json:"currency"`
	LineItems   []LineItem       `json:"line_items"`

	// IdempotencyKey identifies the (file, customer) pair the draft bills.
	IdempotencyKey string `json:"-"`
}

// Total is the sum of quantity × unit amount over every line.
func (d *Draft) Total() types.Money {
	total := types.Zero(d.Currency)
	for _, li := range d.LineItems {
		total = total.Add(li.Amount())
	}
	return total
}

type LineItemType string

const (
	LineItemBaseFee LineItemType = "base_fee"
	LineItemUsage   LineItemType = "usage"
)

// LineItem is one invoice line.
type LineItem struct {
	Description string       `json:"description"`
	Quantity    int64        `json:"quantity"`
	UnitAmount  types.Money  `json:"unit_amount"`
	AccountCode string       `json:"account_code"`
	TaxType     string       `json:"tax_type"`
	Type        LineItemType `json:"type"`
}

// Amount is quantity × unit amount.
func (li LineItem) Amount() types.Money { return li.UnitAmount.Multiply(li.Quantity) }

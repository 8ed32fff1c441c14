package invoice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/charge"
	"github.com/xraph/tally/identity"
	"github.com/xraph/tally/types"
	"github.com/xraph/tally/usage"
)

const (
	// MaxDescription is the longest description the accounting system
	// accepts, in bytes.
	MaxDescription = 3900

	// TruncationMarker is appended to descriptions cut at MaxDescription.
	TruncationMarker = "\n... (truncated)"
)

// ErrZeroAmount is returned when a draft would carry no charge.
var ErrZeroAmount = errors.New("invoice: zero-amount invoices are not emitted")

// Settings holds the accounting codes and draft defaults.
type Settings struct {
	AccountCode     string      `json:"account_code" yaml:"account_code"`
	TaxType         string      `json:"tax_type" yaml:"tax_type"`
	Currency        string      `json:"currency" yaml:"currency"`
	DueDays         int         `json:"due_days" yaml:"due_days"`
	ReferenceSuffix string      `json:"reference_suffix" yaml:"reference_suffix"`
	Status          Status      `json:"status" yaml:"status"`
	MaxDescription  int         `json:"max_description" yaml:"max_description"`
	AmountTypes     AmountTypes `json:"amount_types" yaml:"amount_types"`
}

// DefaultSettings returns the codes used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		AccountCode:     "200",
		TaxType:         "OUTPUT2",
		Currency:        types.DefaultCurrency,
		DueDays:         20,
		ReferenceSuffix: "Calling Charges",
		Status:          StatusDraft,
		MaxDescription:  MaxDescription,
		AmountTypes:     AmountsExclusive,
	}
}

// Builder turns charge groups into line items and drafts.
type Builder struct {
	s Settings
}

// NewBuilder returns a Builder. Zero fields of s take their defaults.
func NewBuilder(s Settings) *Builder {
	d := DefaultSettings()
	if s.AccountCode == "" {
		s.AccountCode = d.AccountCode
	}
	if s.TaxType == "" {
		s.TaxType = d.TaxType
	}
	if s.Currency == "" {
		s.Currency = d.Currency
	}
	if s.DueDays == 0 {
		s.DueDays = d.DueDays
	}
	if s.ReferenceSuffix == "" {
		s.ReferenceSuffix = d.ReferenceSuffix
	}
	if s.Status == "" {
		s.Status = d.Status
	}
	if s.MaxDescription <= 0 {
		s.MaxDescription = d.MaxDescription
	}
	if s.AmountTypes == "" {
		s.AmountTypes = d.AmountTypes
	}
	return &Builder{s: s}
}

// Settings returns the effective settings.
func (b *Builder) Settings() Settings { return b.s }

// Build returns the ordered line items for g.
func (b *Builder) Build(g *charge.Group) []LineItem {
	if g.Kind == charge.KindMultiNumber && g.MultiNumber != nil {
		return b.multiNumber(g)
	}
	return b.standard(g)
}

func (b *Builder) standard(g *charge.Group) []LineItem {
	var sb strings.Builder
	sb.WriteString("Calling charges:")
	for _, s := range g.Subtotals {
		amount := charge.Round(s.Amount)
		if amount.IsZero() {
			continue
		}
		fmt.Fprintf(&sb, "\n%s Calls (%d calls - %s) $%s",
			s.Type.Label(), s.Count, usage.FormatDuration(s.DurationSeconds), amount.StringFixed(2))
	}
	return []LineItem{b.line(sb.String(), g.Total, b.s.AccountCode, LineItemUsage)}
}

func (b *Builder) multiNumber(g *charge.Group) []LineItem {
	code := g.MultiNumber.AccountCode
	if code == "" {
		code = b.s.AccountCode
	}

	items := make([]LineItem, 0, len(g.SubAccounts)+1)
	if g.BaseFee.IsPositive() {
		desc := g.MultiNumber.BaseFeeDescription
		if desc == "" {
			desc = "Monthly base fee"
		}
		items = append(items, b.line(desc, g.BaseFee, code, LineItemBaseFee))
	}

	for _, sa := range g.SubAccounts {
		var sb strings.Builder
		sb.WriteString(sa.Number)
		for _, s := range sa.Subtotals {
			if s.Count == 0 && s.Amount.IsZero() {
				continue
			}
			fmt.Fprintf(&sb, "\n%s (%d calls - %s)", s.Type.Label(), s.Count, usage.FormatDuration(s.DurationSeconds))
		}
		items = append(items, b.line(sb.String(), sa.Total, code, LineItemUsage))
	}
	return items
}

func (b *Builder) line(desc string, amount decimal.Decimal, code string, typ LineItemType) LineItem {
	return LineItem{
		Description: Truncate(desc, b.s.MaxDescription),
		Quantity:    1,
		UnitAmount:  types.FromDecimal(amount, b.s.Currency),
		AccountCode: code,
		TaxType:     b.s.TaxType,
		Type:        typ,
	}
}

// Meta carries the per-run header fields of a draft.
type Meta struct {
	Date      time.Time
	Reference string
}

// Draft assembles the invoice for g. The due date is Date plus the
// configured number of days. It returns ErrZeroAmount when the lines sum
// to zero.
func (b *Builder) Draft(g *charge.Group, contact identity.Contact, meta Meta) (*Draft, error) {
	ref := meta.Reference
	if ref == "" {
		ref = b.Reference(meta.Date)
	}
	d := &Draft{
		Contact:     contact,
		Type:        TypeReceivable,
		Status:      b.s.Status,
		AmountTypes: b.s.AmountTypes,
		Date:        meta.Date,
		DueDate:     meta.Date.AddDate(0, 0, b.s.DueDays),
		Reference:   ref,
		Currency:    b.s.Currency,
		LineItems:   b.Build(g),
	}
	if !d.Total().IsPositive() {
		return nil, ErrZeroAmount
	}
	return d, nil
}

// Reference returns the default reference for an invoice dated t,
// e.g. "Dec Calling Charges".
func (b *Builder) Reference(t time.Time) string {
	return t.Format("Jan") + " " + b.s.ReferenceSuffix
}

// Truncate cuts s to limit bytes and appends TruncationMarker when s is
// longer than limit. The cut is byte-exact, so it may split a multi-byte
// rune and leave invalid UTF-8 before the marker.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + TruncationMarker
}

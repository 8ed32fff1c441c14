package charge

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/rate"
	"github.com/xraph/tally/usage"
)

// Strategy computes the charge group for one classified customer.
type Strategy interface {
	Kind() Kind
	Charge(c Customer, table *rate.Table) *Group
}

// Standard bills every call of the customer on a single line.
type Standard struct{}

// Kind implements Strategy.
func (Standard) Kind() Kind { return KindStandard }

// Charge implements Strategy.
func (Standard) Charge(c Customer, table *rate.Table) *Group {
	subs, total := subtotal(c.Facts, table)
	return &Group{
		Customer:  c,
		Kind:      KindStandard,
		Table:     table,
		Subtotals: subs,
		Total:     Round(total),
	}
}

// MultiNumber bills each phone number of a special customer separately
// and adds the table's base fee once per cycle.
type MultiNumber struct {
	Config MultiNumberConfig
}

// Kind implements Strategy.
func (MultiNumber) Kind() Kind { return KindMultiNumber }

// Charge implements Strategy. The primary number comes first, then
// toll-free numbers in the order they appear in the report. Numbers with
// no calls and no charge are left out.
func (m MultiNumber) Charge(c Customer, table *rate.Table) *Group {
	cfg := m.Config
	var order []string
	byNumber := make(map[string][]usage.CallFact)

	for _, f := range c.Facts {
		number := cfg.PrimaryNumber
		if cfg.TollFreePrefix != "" && strings.HasPrefix(f.SubAccount, cfg.TollFreePrefix) {
			number = f.SubAccount
		} else if number == "" {
			number = f.SubAccount
		}
		if _, seen := byNumber[number]; !seen {
			order = append(order, number)
		}
		byNumber[number] = append(byNumber[number], f)
	}

	if i := slices.Index(order, cfg.PrimaryNumber); i > 0 {
		order = slices.Insert(slices.Delete(order, i, i+1), 0, cfg.PrimaryNumber)
	}

	g := &Group{
		Customer:    c,
		Kind:        KindMultiNumber,
		Table:       table,
		BaseFee:     Round(table.BaseFee),
		MultiNumber: &cfg,
	}
	total := g.BaseFee
	for _, number := range order {
		subs, amount := subtotal(byNumber[number], table)
		sa := &SubAccount{Number: number, Subtotals: subs, Total: Round(amount)}
		if sa.Calls() == 0 && sa.Total.IsZero() {
			continue
		}
		g.SubAccounts = append(g.SubAccounts, sa)
		total = total.Add(sa.Total)
	}
	g.Total = Round(total)
	return g
}

// Aggregator classifies customers and computes their charge groups.
type Aggregator struct {
	rates   *rate.Resolver
	special map[string]MultiNumberConfig
}

// NewAggregator returns an Aggregator using rates and the given special
// multi-number customers.
func NewAggregator(rates *rate.Resolver, special ...MultiNumberConfig) *Aggregator {
	a := &Aggregator{rates: rates, special: make(map[string]MultiNumberConfig, len(special))}
	for _, s := range special {
		a.special[strings.TrimSpace(s.Name)] = s
	}
	return a
}

// Classify decides once per customer which strategy bills it.
func (a *Aggregator) Classify(c Customer) Strategy {
	for _, name := range c.UsageNames {
		if cfg, ok := a.special[strings.TrimSpace(name)]; ok {
			return MultiNumber{Config: cfg}
		}
	}
	return Standard{}
}

// Aggregate charges every customer. Groups with a zero total are returned
// in dropped; they must not be invoiced.
func (a *Aggregator) Aggregate(customers []Customer) (groups, dropped []*Group) {
	for _, c := range customers {
		table := a.rates.Resolve(append(append([]string{}, c.UsageNames...), c.Name)...)
		g := a.Classify(c).Charge(c, table)
		if g.IsZero() {
			dropped = append(dropped, g)
			continue
		}
		groups = append(groups, g)
	}
	return groups, dropped
}

// subtotal rates facts one at a time, rounding each fact's duration up to
// whole minutes, and folds them into per-call-type subtotals in the
// canonical call-type order. The returned total is unrounded.
func subtotal(facts []usage.CallFact, table *rate.Table) ([]Subtotal, decimal.Decimal) {
	byType := make(map[usage.CallType]*Subtotal)
	total := decimal.Zero

	for _, f := range facts {
		r := table.Rate(f.Type)
		minutes := f.Minutes()
		amount := r.Mul(decimal.NewFromInt(minutes))

		s, ok := byType[f.Type]
		if !ok {
			s = &Subtotal{Type: f.Type, Rate: r, Amount: decimal.Zero}
			byType[f.Type] = s
		}
		s.Count += f.Count
		s.DurationSeconds += f.DurationSeconds
		s.Minutes += minutes
		s.Amount = s.Amount.Add(amount)
		total = total.Add(amount)
	}

	subs := make([]Subtotal, 0, len(byType))
	for _, t := range usage.CallTypes {
		if s, ok := byType[t]; ok {
			subs = append(subs, *s)
		}
	}
	if len(subs) < len(byType) {
		var extra []usage.CallType
		for t := range byType {
			if !slices.Contains(usage.CallTypes, t) {
				extra = append(extra, t)
			}
		}
		slices.Sort(extra)
		for _, t := range extra {
			subs = append(subs, *byType[t])
		}
	}
	return subs, total
}

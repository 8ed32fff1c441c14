package rate

import "strings"

// Resolver picks the rate table for a customer.
type Resolver struct {
	standard  *Table
	overrides map[string]*Table
}

// NewResolver builds a Resolver. Override keys are customer identities and
// are matched case-insensitively after trimming. A nil standard table falls
// back to Standard().
func NewResolver(standard *Table, overrides map[string]*Table) *Resolver {
	if standard == nil {
		standard = Standard()
	}
	r := &Resolver{standard: standard, overrides: make(map[string]*Table, len(overrides))}
	for k, t := range overrides {
		r.overrides[normalize(k)] = t
	}
	return r
}

// Resolve returns the override table of the first identity that has one,
// or the standard table.
func (r *Resolver) Resolve(identities ...string) *Table {
	for _, ident := range identities {
		if t, ok := r.overrides[normalize(ident)]; ok {
			return t
		}
	}
	return r.standard
}

// Standard returns the resolver's default table.
func (r *Resolver) Standard() *Table { return r.standard }

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

package identity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Override is one curated mapping entry.
type Override struct {
	UsageName      string `json:"usage_name" yaml:"usage_name"`
	AccountingName string `json:"accounting_name" yaml:"accounting_name"`
	Ignore         bool   `json:"ignore" yaml:"ignore"`
}

// Overrides is the operator-maintained mapping table. Several usage names
// may point at the same accounting name.
type Overrides struct {
	entries map[string]Override
}

// NewOverrides builds a table from entries. Later entries win.
func NewOverrides(entries ...Override) *Overrides {
	o := &Overrides{entries: make(map[string]Override, len(entries))}
	for _, e := range entries {
		o.Add(e)
	}
	return o
}

// Add inserts or replaces an entry.
func (o *Overrides) Add(e Override) {
	e.UsageName = strings.TrimSpace(e.UsageName)
	e.AccountingName = strings.TrimSpace(e.AccountingName)
	if isIgnoreMarker(e.AccountingName) {
		e.Ignore = true
		e.AccountingName = ""
	}
	o.entries[Normalize(e.UsageName)] = e
}

// Lookup finds the entry for a usage-report name.
func (o *Overrides) Lookup(name string) (Override, bool) {
	e, ok := o.entries[Normalize(name)]
	return e, ok
}

// Len returns the number of entries.
func (o *Overrides) Len() int { return len(o.entries) }

// Entries returns every entry ordered by usage name.
func (o *Overrides) Entries() []Override {
	out := make([]Override, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return Normalize(out[i].UsageName) < Normalize(out[j].UsageName) })
	return out
}

func isIgnoreMarker(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s == "IGNORE" || s == "[IGNORE]"
}

// LoadOverridesFile reads a mapping CSV from path.
func LoadOverridesFile(path string) (*Overrides, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("identity: open mapping: %w", err)
	}
	defer f.Close()
	return LoadOverrides(f)
}

// LoadOverrides reads a mapping CSV with "usage_name" and "accounting_name"
// columns. An accounting name of IGNORE or [IGNORE] excludes the customer
// from billing. Rows with an empty accounting name are skipped.
func LoadOverrides(r io.Reader) (*Overrides, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("identity: read mapping header: %w", err)
	}
	usageCol, accountingCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "usage_name":
			usageCol = i
		case "accounting_name":
			accountingCol = i
		}
	}
	if usageCol < 0 || accountingCol < 0 {
		return nil, errors.New("identity: mapping needs usage_name and accounting_name columns")
	}

	o := NewOverrides()
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("identity: read mapping: %w", err)
		}
		if usageCol >= len(row) || accountingCol >= len(row) {
			continue
		}
		if strings.TrimSpace(row[usageCol]) == "" || strings.TrimSpace(row[accountingCol]) == "" {
			continue
		}
		o.Add(Override{UsageName: row[usageCol], AccountingName: row[accountingCol]})
	}
	return o, nil
}

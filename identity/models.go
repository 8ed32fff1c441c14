// Package identity maps usage-report customer names to accounting-system
// contacts.
package identity

import "fmt"

// Contact is a customer record in the accounting system.
type Contact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Source records how a mapping was decided.
type Source string

const (
	SourceOverride   Source = "override"
	SourceExact      Source = "exact"
	SourceFuzzy      Source = "fuzzy"
	SourceIgnored    Source = "ignored"
	SourceUnresolved Source = "unresolved"
)

// Mapping is the outcome of resolving one usage-report name.
type Mapping struct {
	UsageName  string   `json:"usage_name"`
	Contact    *Contact `json:"contact,omitempty"`
	Confidence int      `json:"confidence"`
	Source     Source   `json:"source"`

	// Best rejected candidate, kept so an operator can curate the override
	// table.
	Candidate      *Contact `json:"candidate,omitempty"`
	CandidateScore int      `json:"candidate_score,omitempty"`
}

// Resolved reports whether the mapping names a contact to bill.
func (m Mapping) Resolved() bool {
	return m.Contact != nil && (m.Source == SourceOverride || m.Source == SourceExact || m.Source == SourceFuzzy)
}

// Err returns an UnresolvedError for unresolved mappings and nil otherwise.
func (m Mapping) Err() error {
	if m.Source != SourceUnresolved {
		return nil
	}
	return &UnresolvedError{Name: m.UsageName, Candidate: m.Candidate, Score: m.CandidateScore}
}

// UnresolvedError means no accounting contact could be chosen for a name.
// The customer must be mapped by an operator.
type UnresolvedError struct {
	Name      string
	Candidate *Contact
	Score     int
}

func (e *UnresolvedError) Error() string {
	if e.Candidate != nil {
		return fmt.Sprintf("identity: no mapping for %q (closest %q scored %d)", e.Name, e.Candidate.Name, e.Score)
	}
	return fmt.Sprintf("identity: no mapping for %q", e.Name)
}

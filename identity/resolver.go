package identity

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultThreshold is the fuzzy score a candidate must exceed.
const DefaultThreshold = 80

// Similarity scores two normalized names in [0, 100].
type Similarity func(a, b string) int

// Ratio is a Levenshtein similarity: 100 × (1 − distance / longer length).
func Ratio(a, b string) int {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * float64(longest-dist) / float64(longest)))
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold sets the fuzzy acceptance threshold (exclusive).
func WithThreshold(t int) Option {
	return func(r *Resolver) { r.threshold = t }
}

// WithSimilarity replaces the similarity function.
func WithSimilarity(s Similarity) Option {
	return func(r *Resolver) { r.similarity = s }
}

// WithOverrides sets the curated override table.
func WithOverrides(o *Overrides) Option {
	return func(r *Resolver) { r.overrides = o }
}

// Resolver chooses the accounting contact for a usage-report name.
type Resolver struct {
	threshold  int
	similarity Similarity
	overrides  *Overrides
}

// NewResolver returns a Resolver with the default threshold and Ratio.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{threshold: DefaultThreshold, similarity: Ratio}
	for _, opt := range opts {
		opt(r)
	}
	if r.overrides == nil {
		r.overrides = NewOverrides()
	}
	return r
}

// Overrides returns the curated override table.
func (r *Resolver) Overrides() *Overrides { return r.overrides }

// Resolve maps name to one of contacts. The override table is consulted
// first, then exact normalized equality, then the best fuzzy score above
// the threshold. Equal scores keep the first contact seen.
func (r *Resolver) Resolve(name string, contacts []Contact) Mapping {
	m := Mapping{UsageName: strings.TrimSpace(name)}
	key := Normalize(name)

	if o, ok := r.overrides.Lookup(key); ok {
		if o.Ignore {
			m.Source = SourceIgnored
			return m
		}
		c := findByName(contacts, o.AccountingName)
		if c == nil {
			c = &Contact{Name: o.AccountingName}
		}
		m.Contact = c
		m.Confidence = 100
		m.Source = SourceOverride
		return m
	}

	if c := findByName(contacts, key); c != nil {
		m.Contact = c
		m.Confidence = 100
		m.Source = SourceExact
		return m
	}

	best, bestScore := -1, -1
	for i := range contacts {
		score := r.similarity(key, Normalize(contacts[i].Name))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore > r.threshold {
		c := contacts[best]
		m.Contact = &c
		m.Confidence = bestScore
		m.Source = SourceFuzzy
		return m
	}

	m.Source = SourceUnresolved
	if best >= 0 {
		c := contacts[best]
		m.Candidate = &c
		m.CandidateScore = bestScore
	}
	return m
}

// Normalize trims and lowercases a name.
func Normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func findByName(contacts []Contact, name string) *Contact {
	key := Normalize(name)
	for i := range contacts {
		if Normalize(contacts[i].Name) == key {
			c := contacts[i]
			return &c
		}
	}
	return nil
}

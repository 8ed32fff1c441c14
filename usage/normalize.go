package usage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	callPattern = regexp.MustCompile(`(?i)(\d+)\s+calls?\s*-\s*((?:\d+\s+days?\s+)?[\d:]+)`)
	daysPattern = regexp.MustCompile(`(?i)^(\d+)\s+days?\s+(.+)$`)
)

// ParseError describes a call row whose count or duration could not be read.
// It is recovered locally: the row still produces a zero-valued CallFact.
type ParseError struct {
	Line        int
	Customer    string
	Description string
	Reason      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("usage: line %d (%s): %s: %q", e.Line, e.Customer, e.Reason, e.Description)
}

// Normalizer converts Records to CallFacts and keeps the parse failures it
// recovered from. A Normalizer belongs to a single run.
type Normalizer struct {
	failures []*ParseError
}

// NewNormalizer returns an empty Normalizer.
func NewNormalizer() *Normalizer { return &Normalizer{} }

// Normalize reads one record. ok is false when the row does not describe a
// call at all.
func (n *Normalizer) Normalize(rec Record) (fact CallFact, ok bool) {
	if !IsCall(rec.Description) {
		return CallFact{}, false
	}

	fact = CallFact{
		Type:       Classify(rec.Description),
		Customer:   strings.TrimSpace(rec.CustomerName),
		SubAccount: strings.TrimSpace(rec.ServiceNumber),
	}

	count, seconds, err := ParseCalls(rec.Description)
	if err != nil {
		n.failures = append(n.failures, &ParseError{
			Line:        rec.Line,
			Customer:    fact.Customer,
			Description: rec.Description,
			Reason:      err.Error(),
		})
		return fact, true
	}
	fact.Count = count
	fact.DurationSeconds = seconds
	return fact, true
}

// NormalizeAll reads every record, skipping rows that are not calls.
func (n *Normalizer) NormalizeAll(recs []Record) []CallFact {
	facts := make([]CallFact, 0, len(recs))
	for _, rec := range recs {
		if fact, ok := n.Normalize(rec); ok {
			facts = append(facts, fact)
		}
	}
	return facts
}

// Failures returns the parse failures recovered so far.
func (n *Normalizer) Failures() []*ParseError { return n.failures }

// IsCall reports whether a description describes call traffic.
func IsCall(description string) bool {
	return strings.Contains(strings.ToLower(description), "call")
}

// Classify picks the call type by keyword. Toll-free descriptions are tested
// first; after that the first match in the order international, local,
// mobile, national wins. "international" is tested before "national" because
// it contains it.
func Classify(description string) CallType {
	d := strings.ToLower(description)

	if strings.Contains(d, "tfree") || strings.Contains(d, "toll free") || strings.Contains(d, "tollfree") {
		switch {
		case strings.Contains(d, "mobile"):
			return CallTollFreeMobile
		case strings.Contains(d, "national") && !strings.Contains(d, "international"):
			return CallTollFreeNational
		default:
			return CallTollFreeOther
		}
	}

	switch {
	case strings.Contains(d, "australia"), strings.Contains(d, "international"):
		return CallInternational
	case strings.Contains(d, "local"):
		return CallLocal
	case strings.Contains(d, "mobile"):
		return CallMobile
	case strings.Contains(d, "national"):
		return CallNational
	default:
		return CallOther
	}
}

// ParseCalls extracts "<count> calls - <duration>" from free text.
func ParseCalls(description string) (count, seconds int64, err error) {
	m := callPattern.FindStringSubmatch(description)
	if m == nil {
		return 0, 0, fmt.Errorf("no call count and duration")
	}
	count, err = strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("call count: %w", err)
	}
	seconds, err = ParseDuration(m[2])
	if err != nil {
		return 0, 0, err
	}
	return count, seconds, nil
}

// ParseDuration reads "HH:MM:SS", "MM:SS" or "<N> days HH:MM:SS" into
// seconds. Days fold into hours.
func ParseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)

	var days int64
	if m := daysPattern.FindStringSubmatch(s); m != nil {
		d, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("duration days %q: %w", s, err)
		}
		days = d
		s = strings.TrimSpace(m[2])
	}

	parts := strings.Split(s, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, fmt.Errorf("duration %q: want HH:MM:SS", s)
	}

	var hms [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("duration %q: bad field %q", s, p)
		}
		hms[i] = v
	}

	hours := days*24 + hms[0]
	return hours*3600 + hms[1]*60 + hms[2], nil
}

// FormatDuration renders seconds as HH:MM:SS. Hours are not wrapped at 24.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

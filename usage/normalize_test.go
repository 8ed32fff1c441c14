package usage

import (
	"strings"
	"testing"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		seconds int64
		minutes int64
	}{
		{"07:38:47", 27527, 459},
		{"00:01:00", 60, 1},
		{"00:01:01", 61, 2},
		{"00:00:01", 1, 1},
		{"00:00:00", 0, 0},
		{"38:47", 2327, 39},
		{"1 day 00:00:10", 86410, 1441},
		{"2 days 03:04:05", 2*86400 + 3*3600 + 4*60 + 5, 3065},
		{"30:00:00", 108000, 1800},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if err != nil {
				t.Fatalf("ParseDuration(%q): %v", tt.in, err)
			}
			if got != tt.seconds {
				t.Errorf("seconds: got %d, want %d", got, tt.seconds)
			}
			if m := Minutes(got); m != tt.minutes {
				t.Errorf("minutes: got %d, want %d", m, tt.minutes)
			}
		})
	}
}

func TestParseDurationMalformed(t *testing.T) {
	for _, in := range []string{"", "7", "1:2:3:4", "aa:bb:cc", "2 days", "01:-1:00"} {
		if _, err := ParseDuration(in); err == nil {
			t.Errorf("ParseDuration(%q): expected error", in)
		}
	}
}

func TestMinutesRoundsUpEveryRemainder(t *testing.T) {
	for s := int64(1); s <= 600; s++ {
		want := s / 60
		if s%60 != 0 {
			want++
		}
		if got := Minutes(s); got != want {
			t.Fatalf("Minutes(%d): got %d, want %d", s, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		desc string
		want CallType
	}{
		{"Local Calls (3 calls - 00:10:00)", CallLocal},
		{"Mobile Calls (3 calls - 00:10:00)", CallMobile},
		{"National Calls (199 calls - 07:38:47)", CallNational},
		{"Calls to Australia (2 calls - 00:02:00)", CallInternational},
		{"International Calls (2 calls - 00:02:00)", CallInternational},
		{"TFree Inbound - Mobile (45 calls - 02:15:20)", CallTollFreeMobile},
		{"TFree Inbound - National (22 calls - 01:12:30)", CallTollFreeNational},
		{"TFree Inbound - Australia (1 call - 00:00:40)", CallTollFreeOther},
		{"Toll Free Inbound - Other (1 call - 00:00:40)", CallTollFreeOther},
		{"Satellite Calls (1 call - 00:00:40)", CallOther},
		// Several keywords: precedence decides.
		{"Local and Mobile Calls (1 call - 00:01:00)", CallLocal},
		{"Mobile to National Calls (1 call - 00:01:00)", CallMobile},
		{"TFree National from Mobile (1 call - 00:01:00)", CallTollFreeMobile},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := Classify(tt.desc); got != tt.want {
				t.Errorf("Classify: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer()

	fact, ok := n.Normalize(Record{
		CustomerName:  "  Acme Ltd ",
		Description:   "National Calls (199 calls - 07:38:47)",
		ServiceNumber: "6491234567",
	})
	if !ok {
		t.Fatal("expected a call fact")
	}
	if fact.Customer != "Acme Ltd" {
		t.Errorf("Customer: got %q", fact.Customer)
	}
	if fact.Type != CallNational || fact.Count != 199 || fact.DurationSeconds != 27527 {
		t.Errorf("fact: got %+v", fact)
	}
	if fact.SubAccount != "6491234567" {
		t.Errorf("SubAccount: got %q", fact.SubAccount)
	}

	if _, ok := n.Normalize(Record{CustomerName: "Acme Ltd", Description: "DDI Number Rental"}); ok {
		t.Error("rental row should not produce a call fact")
	}
	if len(n.Failures()) != 0 {
		t.Errorf("unexpected failures: %v", n.Failures())
	}
}

func TestNormalizeRecoversFromMalformedDuration(t *testing.T) {
	n := NewNormalizer()
	facts := n.NormalizeAll([]Record{
		{CustomerName: "Acme", Description: "Mobile Calls (garbled)", Line: 2},
		{CustomerName: "Acme", Description: "Mobile Calls (4 calls - xx:yy)", Line: 3},
		{CustomerName: "Acme", Description: "Mobile Calls (4 calls - 00:04:00)", Line: 4},
	})

	if len(facts) != 3 {
		t.Fatalf("facts: got %d, want 3", len(facts))
	}
	for _, f := range facts[:2] {
		if f.Count != 0 || f.DurationSeconds != 0 {
			t.Errorf("malformed row should be zero-valued, got %+v", f)
		}
	}
	if facts[2].Count != 4 || facts[2].Minutes() != 4 {
		t.Errorf("valid row: got %+v", facts[2])
	}

	failures := n.Failures()
	if len(failures) != 2 {
		t.Fatalf("failures: got %d, want 2", len(failures))
	}
	if failures[0].Line != 2 || !strings.Contains(failures[0].Error(), "Acme") {
		t.Errorf("failure: got %v", failures[0])
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(27527); got != "07:38:47" {
		t.Errorf("got %s, want 07:38:47", got)
	}
	if got := FormatDuration(2*86400 + 5); got != "48:00:05" {
		t.Errorf("got %s, want 48:00:05", got)
	}
}

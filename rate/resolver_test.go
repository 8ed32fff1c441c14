package rate

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/usage"
)

func TestResolve(t *testing.T) {
	tsc := TollFree("the service company")
	r := NewResolver(nil, map[string]*Table{"The Service Company": tsc})

	tests := []struct {
		name       string
		identities []string
		want       *Table
	}{
		{"override exact", []string{"The Service Company"}, tsc},
		{"override case and space", []string{"  the SERVICE company "}, tsc},
		{"second identity matches", []string{"TSC Ltd", "the service company"}, tsc},
		{"standard fallback", []string{"Acme Ltd"}, r.Standard()},
		{"no identity", nil, r.Standard()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.identities...); got != tt.want {
				t.Errorf("Resolve: got %q, want %q", got.Name, tt.want.Name)
			}
		})
	}
}

func TestRateFallsBackToOther(t *testing.T) {
	std := Standard()
	if got := std.Rate(usage.CallNational); !got.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("National: got %s, want 0.05", got)
	}
	if got := std.Rate(usage.CallTollFreeMobile); !got.Equal(std.Other) {
		t.Errorf("unknown type: got %s, want other rate %s", got, std.Other)
	}
	if got := std.Rate(usage.CallType("satellite")); !got.Equal(std.Other) {
		t.Errorf("unlisted type: got %s, want %s", got, std.Other)
	}
}

func TestTollFreeTable(t *testing.T) {
	tf := TollFree("tsc")
	if !tf.HasBaseFee() || tf.BaseFee.StringFixed(2) != "55.00" {
		t.Errorf("BaseFee: got %s", tf.BaseFee)
	}
	if got := tf.Rate(usage.CallTollFreeMobile).String(); got != "0.28" {
		t.Errorf("TollFree mobile: got %s", got)
	}
	if got := tf.Rate(usage.CallMobile).String(); got != "0.12" {
		t.Errorf("outbound mobile: got %s", got)
	}
	if Standard().HasBaseFee() {
		t.Error("standard table should not carry a base fee")
	}
}

func TestValidate(t *testing.T) {
	tbl := Standard()
	if err := tbl.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	tbl.Rates[usage.CallLocal] = decimal.RequireFromString("-0.01")
	if err := tbl.Validate(); err == nil {
		t.Error("expected error for negative rate")
	}
}

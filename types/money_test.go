package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFromDecimal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		amount  int64
		display string
	}{
		{"exact", "22.95", 2295, "NZ$22.95"},
		{"round half up", "0.125", 13, "NZ$0.13"},
		{"round down", "4.124", 412, "NZ$4.12"},
		{"whole", "55", 5500, "NZ$55.00"},
		{"zero", "0", 0, "NZ$0.00"},
		{"negative", "-1.005", -101, "NZ$-1.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := FromDecimal(decimal.RequireFromString(tt.in), "NZD")
			if m.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", m.Amount, tt.amount)
			}
			if m.Currency != "nzd" {
				t.Errorf("Currency: got %s, want nzd", m.Currency)
			}
			if m.String() != tt.display {
				t.Errorf("Display: got %s, want %s", m.String(), tt.display)
			}
		})
	}
}

func TestMoneyDecimalRoundTrip(t *testing.T) {
	m := NZD(2295)
	if got := m.Decimal().String(); got != "22.95" {
		t.Errorf("Decimal: got %s, want 22.95", got)
	}
	if !FromDecimal(m.Decimal(), "nzd").Equal(m) {
		t.Errorf("round trip changed value: %v", m)
	}
}

func TestMoneyArithmetic(t *testing.T) {
	if got := NZD(100).Add(NZD(250)); !got.Equal(NZD(350)) {
		t.Errorf("Add: got %v, want NZ$3.50", got)
	}
	if got := NZD(125).Multiply(3); !got.Equal(NZD(375)) {
		t.Errorf("Multiply: got %v, want NZ$3.75", got)
	}
	if got := Sum("nzd"); !got.IsZero() {
		t.Errorf("Sum of nothing: got %v, want zero", got)
	}
	if got := Sum("nzd", NZD(5500), NZD(2295), NZD(1)); got.Amount != 7796 {
		t.Errorf("Sum: got %d, want 7796", got.Amount)
	}
}

func TestMoneyCurrencyMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on currency mismatch")
		}
	}()
	NZD(100).Add(Money{Amount: 100, Currency: "aud"})
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(NZD(5500))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["display"] != "NZ$55.00" {
		t.Errorf("display: got %v, want NZ$55.00", out["display"])
	}
}

func TestEntityStale(t *testing.T) {
	base := time.Date(2024, 12, 31, 10, 0, 0, 0, time.UTC)
	e := NewEntity(base)
	if e.IsStale(base.Add(time.Minute), time.Hour) {
		t.Error("entity touched a minute ago should not be stale")
	}
	if !e.IsStale(base.Add(2*time.Hour), time.Hour) {
		t.Error("entity touched two hours ago should be stale")
	}
	e.Touch(base.Add(2 * time.Hour))
	if e.IsStale(base.Add(2*time.Hour), time.Hour) {
		t.Error("touch should reset staleness")
	}
}

package charge

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/tally/rate"
	"github.com/xraph/tally/usage"
)

var tsc = MultiNumberConfig{
	Name:               "The Service Company",
	AccountCode:        "43850",
	PrimaryNumber:      "6492003366",
	TollFreePrefix:     "64800",
	BaseFeeDescription: "Monthly Charges for Toll Free Numbers",
}

func newAggregator() *Aggregator {
	rates := rate.NewResolver(nil, map[string]*rate.Table{tsc.Name: rate.TollFree(tsc.Name)})
	return NewAggregator(rates, tsc)
}

func TestNationalChargeExample(t *testing.T) {
	g := Standard{}.Charge(Customer{
		Name: "Acme Ltd",
		Facts: []usage.CallFact{
			{Type: usage.CallNational, Count: 199, DurationSeconds: 7*3600 + 38*60 + 47},
		},
	}, rate.Standard())

	if got := g.Total.StringFixed(2); got != "22.95" {
		t.Errorf("Total: got %s, want 22.95", got)
	}
	if len(g.Subtotals) != 1 || g.Subtotals[0].Minutes != 459 {
		t.Errorf("Subtotals: got %+v", g.Subtotals)
	}
}

func TestMinutesRoundedPerFact(t *testing.T) {
	// Two 30-second calls bill as two minutes, not one.
	g := Standard{}.Charge(Customer{Facts: []usage.CallFact{
		{Type: usage.CallMobile, Count: 1, DurationSeconds: 30},
		{Type: usage.CallMobile, Count: 1, DurationSeconds: 30},
	}}, rate.Standard())

	if got := g.Total.StringFixed(2); got != "0.24" {
		t.Errorf("Total: got %s, want 0.24", got)
	}
	want := []Subtotal{{Type: usage.CallMobile, Count: 2, DurationSeconds: 60, Minutes: 2}}
	if diff := cmp.Diff(want, g.Subtotals, cmp.Comparer(func(a, b Subtotal) bool {
		return a.Type == b.Type && a.Count == b.Count && a.DurationSeconds == b.DurationSeconds && a.Minutes == b.Minutes
	})); diff != "" {
		t.Errorf("Subtotals mismatch (-want +got):\n%s", diff)
	}
}

func TestSubtotalsInCanonicalOrder(t *testing.T) {
	g := Standard{}.Charge(Customer{Facts: []usage.CallFact{
		{Type: usage.CallNational, Count: 1, DurationSeconds: 60},
		{Type: usage.CallLocal, Count: 1, DurationSeconds: 60},
		{Type: usage.CallMobile, Count: 1, DurationSeconds: 60},
	}}, rate.Standard())

	var got []usage.CallType
	for _, s := range g.Subtotals {
		got = append(got, s.Type)
	}
	want := []usage.CallType{usage.CallLocal, usage.CallMobile, usage.CallNational}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify(t *testing.T) {
	a := newAggregator()
	if _, ok := a.Classify(Customer{UsageNames: []string{" The Service Company "}}).(MultiNumber); !ok {
		t.Error("special customer should classify as MultiNumber")
	}
	if k := a.Classify(Customer{UsageNames: []string{"the service company"}}).Kind(); k != KindStandard {
		t.Errorf("different case: got %s, want standard", k)
	}
	if k := a.Classify(Customer{UsageNames: []string{"The Service Company Ltd"}}).Kind(); k != KindStandard {
		t.Errorf("near-miss name: got %s, want standard", k)
	}
}

func TestMultiNumberBaseFeeOncePerCycle(t *testing.T) {
	a := newAggregator()
	groups, dropped := a.Aggregate([]Customer{{
		Key:        "c-tsc",
		Name:       "The Service Company Limited",
		UsageNames: []string{"The Service Company"},
		Facts: []usage.CallFact{
			{Type: usage.CallTollFreeMobile, Count: 45, DurationSeconds: 2*3600 + 15*60 + 20, SubAccount: "64800366080"},
			{Type: usage.CallTollFreeNational, Count: 22, DurationSeconds: 3600 + 12*60 + 30, SubAccount: "64800366080"},
			{Type: usage.CallTollFreeMobile, Count: 12, DurationSeconds: 45*60 + 10, SubAccount: "64800753753"},
			{Type: usage.CallLocal, Count: 10, DurationSeconds: 600, SubAccount: "6492003366"},
			{Type: usage.CallTollFreeMobile, Count: 0, DurationSeconds: 0, SubAccount: "64800650252"},
		},
	}})

	if len(dropped) != 0 || len(groups) != 1 {
		t.Fatalf("groups: got %d, dropped %d", len(groups), len(dropped))
	}
	g := groups[0]
	if g.Kind != KindMultiNumber {
		t.Fatalf("Kind: got %s", g.Kind)
	}
	if g.BaseFee.StringFixed(2) != "55.00" {
		t.Errorf("BaseFee: got %s", g.BaseFee)
	}

	var numbers []string
	for _, sa := range g.SubAccounts {
		numbers = append(numbers, sa.Number)
	}
	want := []string{"6492003366", "64800366080", "64800753753"}
	if diff := cmp.Diff(want, numbers); diff != "" {
		t.Errorf("sub-accounts mismatch (-want +got):\n%s", diff)
	}

	// 136 min × 0.28 = 38.08, 73 min × 0.10 = 7.30, 46 min × 0.28 = 12.88,
	// 10 min × 0.05 = 0.50; plus 55.00.
	if got := g.SubAccounts[1].Total.StringFixed(2); got != "45.38" {
		t.Errorf("64800366080 total: got %s, want 45.38", got)
	}
	if got := g.Total.StringFixed(2); got != "113.76" {
		t.Errorf("Total: got %s, want 113.76", got)
	}
}

func TestMultiNumberWithoutTraffic(t *testing.T) {
	groups, _ := newAggregator().Aggregate([]Customer{{
		UsageNames: []string{"The Service Company"},
	}})
	if len(groups) != 1 {
		t.Fatalf("base fee alone should still bill, got %d groups", len(groups))
	}
	if len(groups[0].SubAccounts) != 0 || groups[0].Total.StringFixed(2) != "55.00" {
		t.Errorf("got %+v", groups[0])
	}
}

func TestZeroChargeGroupsDropped(t *testing.T) {
	groups, dropped := newAggregator().Aggregate([]Customer{
		{Name: "Quiet Ltd", UsageNames: []string{"Quiet Ltd"}, Facts: []usage.CallFact{{Type: usage.CallLocal}}},
		{Name: "Busy Ltd", UsageNames: []string{"Busy Ltd"}, Facts: []usage.CallFact{{Type: usage.CallLocal, Count: 1, DurationSeconds: 1}}},
	})
	if len(groups) != 1 || groups[0].Customer.Name != "Busy Ltd" {
		t.Errorf("groups: got %+v", groups)
	}
	if len(dropped) != 1 || dropped[0].Customer.Name != "Quiet Ltd" {
		t.Errorf("dropped: got %+v", dropped)
	}
}

func TestRateOverrideByAccountingName(t *testing.T) {
	special := rate.Standard()
	special.Name = "discount"
	special.Kind = rate.KindOverride
	special.Rates[usage.CallMobile] = special.Rates[usage.CallLocal]

	a := NewAggregator(rate.NewResolver(nil, map[string]*rate.Table{"Discount Customer Ltd": special}))
	groups, _ := a.Aggregate([]Customer{{
		Name:       "Discount Customer Ltd",
		UsageNames: []string{"DISCOUNT CUST"},
		Facts:      []usage.CallFact{{Type: usage.CallMobile, Count: 1, DurationSeconds: 600}},
	}})
	if len(groups) != 1 || groups[0].Total.StringFixed(2) != "0.50" {
		t.Errorf("got %+v", groups)
	}
}

package commission

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ============================================================================
// TEST: Base rates across chain lengths
// ============================================================================

func TestCompute_ChainLengths(t *testing.T) {
	rates := DefaultRateTable()
	profit := dec("1000")

	testCases := []struct {
		name         string
		chain        []string
		wantPlatform string
		wantTier1    string
		wantTier2    string
		wantTotal    string
	}{
		{
			name:         "no referrers, platform only",
			chain:        nil,
			wantPlatform: "100",
			wantTier1:    "0",
			wantTier2:    "0",
			wantTotal:    "100",
		},
		{
			name:         "one referrer pays tier-1 only",
			chain:        []string{"ref-a"},
			wantPlatform: "100",
			wantTier1:    "200",
			wantTier2:    "0",
			wantTotal:    "300",
		},
		{
			name:         "two referrers pay both tiers",
			chain:        []string{"ref-a", "ref-b"},
			wantPlatform: "100",
			wantTier1:    "200",
			wantTier2:    "100",
			wantTotal:    "400",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Compute(profit, tc.chain, rates)
			if err != nil {
				t.Fatalf("Compute returned error: %v", err)
			}
			if !b.PlatformShare.Equal(dec(tc.wantPlatform)) {
				t.Errorf("platform share = %s, want %s", b.PlatformShare, tc.wantPlatform)
			}
			if !b.Tier1Share.Equal(dec(tc.wantTier1)) {
				t.Errorf("tier1 share = %s, want %s", b.Tier1Share, tc.wantTier1)
			}
			if !b.Tier2Share.Equal(dec(tc.wantTier2)) {
				t.Errorf("tier2 share = %s, want %s", b.Tier2Share, tc.wantTier2)
			}
			if !b.Total.Equal(dec(tc.wantTotal)) {
				t.Errorf("total = %s, want %s", b.Total, tc.wantTotal)
			}
			if !b.UserRetained.Equal(profit.Sub(b.Total)) {
				t.Errorf("retained = %s, want profit - total", b.UserRetained)
			}
		})
	}
}

func TestCompute_ChainAccountsAssigned(t *testing.T) {
	b, err := Compute(dec("100"), []string{"direct", "upline"}, DefaultRateTable())
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if b.Tier1Account != "direct" {
		t.Errorf("tier1 account = %q, want %q", b.Tier1Account, "direct")
	}
	if b.Tier2Account != "upline" {
		t.Errorf("tier2 account = %q, want %q", b.Tier2Account, "upline")
	}
}

// ============================================================================
// TEST: Floor rule
// ============================================================================

func TestCompute_FloorRule(t *testing.T) {
	// An aggressive platform rate would leave the user with only 25% of
	// profit; the single-pass recompute caps the platform at 30% and halves
	// both tier commissions.
	rates := RateTable{
		Platform:      dec("0.45"),
		Tier1:         dec("0.20"),
		Tier2:         dec("0.10"),
		UserFloor:     dec("0.50"),
		FloorPlatform: dec("0.30"),
	}

	profit := dec("1000")
	b, err := Compute(profit, []string{"a", "b"}, rates)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}

	if !b.FloorApplied {
		t.Fatal("expected floor rule to apply")
	}
	if !b.PlatformShare.Equal(dec("300")) {
		t.Errorf("platform share = %s, want 300", b.PlatformShare)
	}
	if !b.Tier1Share.Equal(dec("100")) {
		t.Errorf("tier1 share = %s, want 100", b.Tier1Share)
	}
	if !b.Tier2Share.Equal(dec("50")) {
		t.Errorf("tier2 share = %s, want 50", b.Tier2Share)
	}
	if b.UserRetained.LessThan(profit.Mul(dec("0.5"))) {
		t.Errorf("retained %s is below half of profit", b.UserRetained)
	}
}

func TestCompute_FloorNotAppliedWithDefaultRates(t *testing.T) {
	b, err := Compute(dec("1000"), []string{"a", "b"}, DefaultRateTable())
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if b.FloorApplied {
		t.Error("default rates retain 60%, floor must not apply")
	}
}

// ============================================================================
// TEST: Rounding, residual cent to platform
// ============================================================================

func TestCompute_RoundingResidualToPlatform(t *testing.T) {
	// profit 0.33: raw shares are 0.033 / 0.066 / 0.033; tier shares round
	// down to 0.06 and 0.03, total rounds down to 0.13, platform absorbs the
	// residual: 0.13 - 0.06 - 0.03 = 0.04.
	b, err := Compute(dec("0.33"), []string{"a", "b"}, DefaultRateTable())
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}

	if !b.Tier1Share.Equal(dec("0.06")) {
		t.Errorf("tier1 share = %s, want 0.06", b.Tier1Share)
	}
	if !b.Tier2Share.Equal(dec("0.03")) {
		t.Errorf("tier2 share = %s, want 0.03", b.Tier2Share)
	}
	if !b.Total.Equal(dec("0.13")) {
		t.Errorf("total = %s, want 0.13", b.Total)
	}
	if !b.PlatformShare.Equal(dec("0.04")) {
		t.Errorf("platform share = %s, want 0.04", b.PlatformShare)
	}

	sum := b.PlatformShare.Add(b.Tier1Share).Add(b.Tier2Share)
	if !sum.Equal(b.Total) {
		t.Errorf("shares sum %s != total %s", sum, b.Total)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	chain := []string{"a", "b"}
	first, err := Compute(dec("123.45"), chain, DefaultRateTable())
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := Compute(dec("123.45"), chain, DefaultRateTable())
		if !again.Total.Equal(first.Total) || !again.PlatformShare.Equal(first.PlatformShare) {
			t.Fatal("Compute is not deterministic")
		}
	}
}

// ============================================================================
// TEST: Edge cases and the retained-amount property
// ============================================================================

func TestCompute_NegativeProfitRejected(t *testing.T) {
	if _, err := Compute(dec("-1"), nil, DefaultRateTable()); err != ErrNegativeProfit {
		t.Errorf("expected ErrNegativeProfit, got %v", err)
	}
}

func TestCompute_ZeroProfit(t *testing.T) {
	b, err := Compute(decimal.Zero, []string{"a", "b"}, DefaultRateTable())
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if !b.Total.IsZero() || !b.PlatformShare.IsZero() {
		t.Errorf("zero profit must produce a zero breakdown, got total %s", b.Total)
	}
}

// TestCompute_RetainedProperty sweeps profits and chain lengths and checks
// the invariants: sum of shares <= profit and user retains >= 50%.
func TestCompute_RetainedProperty(t *testing.T) {
	rates := DefaultRateTable()
	half := dec("0.5")
	profits := []string{"0", "0.01", "0.03", "1", "9.99", "100", "1234.56", "999999.99"}
	chains := [][]string{nil, {"a"}, {"a", "b"}}

	for _, p := range profits {
		for _, chain := range chains {
			profit := dec(p)
			b, err := Compute(profit, chain, rates)
			if err != nil {
				t.Fatalf("Compute(%s) returned error: %v", p, err)
			}

			sum := b.PlatformShare.Add(b.Tier1Share).Add(b.Tier2Share)
			if sum.GreaterThan(profit) {
				t.Errorf("profit %s chain %d: shares sum %s exceeds profit", p, len(chain), sum)
			}
			if b.UserRetained.LessThan(profit.Mul(half)) {
				t.Errorf("profit %s chain %d: retained %s below half", p, len(chain), b.UserRetained)
			}
			if b.PlatformShare.IsNegative() || b.Tier1Share.IsNegative() || b.Tier2Share.IsNegative() {
				t.Errorf("profit %s chain %d: negative share in breakdown", p, len(chain))
			}
		}
	}
}

package commission

import "testing"

// ============================================================================
// TEST: Distribute
// ============================================================================

func TestDistribute_ProportionsMatchAccrual(t *testing.T) {
	rates := DefaultRateTable()

	// Accrue 1000 profit with a two-deep chain: total fee 400, of which
	// platform 100, tier1 200, tier2 100. Distributing that total must
	// reproduce the same shares.
	b, err := Compute(dec("1000"), []string{"a", "b"}, rates)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}

	s, err := Distribute(b.Total, []string{"a", "b"}, rates)
	if err != nil {
		t.Fatalf("Distribute returned error: %v", err)
	}

	if !s.PlatformShare.Equal(b.PlatformShare) {
		t.Errorf("platform share = %s, want %s", s.PlatformShare, b.PlatformShare)
	}
	if !s.Tier1Share.Equal(b.Tier1Share) {
		t.Errorf("tier1 share = %s, want %s", s.Tier1Share, b.Tier1Share)
	}
	if !s.Tier2Share.Equal(b.Tier2Share) {
		t.Errorf("tier2 share = %s, want %s", s.Tier2Share, b.Tier2Share)
	}
}

func TestDistribute_SharesSumToTotal(t *testing.T) {
	rates := DefaultRateTable()
	totals := []string{"0", "0.01", "0.07", "15", "123.45", "99999.99"}
	chains := [][]string{nil, {"a"}, {"a", "b"}}

	for _, total := range totals {
		for _, chain := range chains {
			s, err := Distribute(dec(total), chain, rates)
			if err != nil {
				t.Fatalf("Distribute(%s) returned error: %v", total, err)
			}
			sum := s.PlatformShare.Add(s.Tier1Share).Add(s.Tier2Share)
			if !sum.Equal(dec(total)) {
				t.Errorf("total %s chain %d: shares sum %s != total", total, len(chain), sum)
			}
			if s.Tier1Share.IsNegative() || s.Tier2Share.IsNegative() || s.PlatformShare.IsNegative() {
				t.Errorf("total %s chain %d: negative share", total, len(chain))
			}
		}
	}
}

func TestDistribute_NoChainGoesToPlatform(t *testing.T) {
	s, err := Distribute(dec("40"), nil, DefaultRateTable())
	if err != nil {
		t.Fatalf("Distribute returned error: %v", err)
	}
	if !s.PlatformShare.Equal(dec("40")) {
		t.Errorf("platform share = %s, want 40", s.PlatformShare)
	}
	if !s.Tier1Share.IsZero() || !s.Tier2Share.IsZero() {
		t.Error("tier shares must be zero without a referrer chain")
	}
}

func TestDistribute_NegativeTotalRejected(t *testing.T) {
	if _, err := Distribute(dec("-1"), nil, DefaultRateTable()); err != ErrNegativeProfit {
		t.Errorf("expected ErrNegativeProfit, got %v", err)
	}
}

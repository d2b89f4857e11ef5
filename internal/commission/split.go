package commission

import (
	"github.com/shopspring/decimal"
)

// Split is the division of one accrued fee total between the platform and
// the upline at settlement time. PlatformShare carries the remainder, so
// PlatformShare + Tier1Share + Tier2Share == Total always.
type Split struct {
	Total         decimal.Decimal `json:"total"`
	PlatformShare decimal.Decimal `json:"platform_share"`
	Tier1Account  string          `json:"tier1_account,omitempty"`
	Tier1Share    decimal.Decimal `json:"tier1_share"`
	Tier2Account  string          `json:"tier2_account,omitempty"`
	Tier2Share    decimal.Decimal `json:"tier2_share"`
}

// Distribute splits an accrued fee total into the platform and tier shares,
// in the same proportions Compute accrued them with. The referrer chain is
// immutable per account, so the weights are constant across every accrual
// that produced the total. Tier shares are rounded down to the cent and the
// platform takes the remainder.
func Distribute(total decimal.Decimal, chain []string, rates RateTable) (Split, error) {
	if total.IsNegative() {
		return Split{}, ErrNegativeProfit
	}

	s := Split{
		Total:         total,
		PlatformShare: total,
		Tier1Share:    decimal.Zero,
		Tier2Share:    decimal.Zero,
	}
	if len(chain) >= 1 {
		s.Tier1Account = chain[0]
	}
	if len(chain) >= 2 {
		s.Tier2Account = chain[1]
	}
	if total.IsZero() {
		return s, nil
	}

	platformW := rates.Platform
	tier1W := decimal.Zero
	tier2W := decimal.Zero
	if len(chain) >= 1 {
		tier1W = rates.Tier1
	}
	if len(chain) >= 2 {
		tier2W = rates.Tier2
	}

	// Whether the retention floor fires depends only on the rates and the
	// chain length, never on the amount; mirror Compute's one-time recompute.
	one := decimal.NewFromInt(1)
	retainedRate := one.Sub(platformW).Sub(tier1W).Sub(tier2W)
	if retainedRate.LessThan(rates.UserFloor) {
		half := decimal.NewFromInt(2)
		platformW = rates.FloorPlatform
		tier1W = tier1W.Div(half)
		tier2W = tier2W.Div(half)
	}

	weightSum := platformW.Add(tier1W).Add(tier2W)
	if weightSum.IsZero() {
		return s, nil
	}

	s.Tier1Share = total.Mul(tier1W).Div(weightSum).RoundDown(centPlaces)
	s.Tier2Share = total.Mul(tier2W).Div(weightSum).RoundDown(centPlaces)
	s.PlatformShare = total.Sub(s.Tier1Share).Sub(s.Tier2Share)
	return s, nil
}

package commission

import (
	"github.com/shopspring/decimal"
)

// centPlaces is the smallest currency unit used for monetary rounding.
const centPlaces = 2

// Compute maps (profit, referrer chain, rates) to a fee breakdown. It is a
// pure function with no side effects.
//
// Tier-1 commission is paid only when the chain has at least one entry,
// tier-2 only when it has at least two. If the user would retain less than
// rates.UserFloor of profit, the breakdown is recomputed once with the
// platform at rates.FloorPlatform and both tier commissions halved.
//
// Rounding: tier shares are rounded down to the cent, the total fee is
// rounded down to the cent, and the platform share is defined as the
// difference, so any residual cent lands with the platform. The result is
// deterministic for a given input.
func Compute(profit decimal.Decimal, chain []string, rates RateTable) (Breakdown, error) {
	if profit.IsNegative() {
		return Breakdown{}, ErrNegativeProfit
	}
	if profit.IsZero() {
		return Zero(profit), nil
	}

	platform := profit.Mul(rates.Platform)
	tier1 := decimal.Zero
	tier2 := decimal.Zero
	if len(chain) >= 1 {
		tier1 = profit.Mul(rates.Tier1)
	}
	if len(chain) >= 2 {
		tier2 = profit.Mul(rates.Tier2)
	}

	floorApplied := false
	retained := profit.Sub(platform).Sub(tier1).Sub(tier2)
	if retained.LessThan(profit.Mul(rates.UserFloor)) {
		// Evaluated once, never iteratively.
		platform = profit.Mul(rates.FloorPlatform)
		half := decimal.NewFromInt(2)
		tier1 = tier1.Div(half)
		tier2 = tier2.Div(half)
		floorApplied = true
	}

	tier1Rounded := tier1.RoundDown(centPlaces)
	tier2Rounded := tier2.RoundDown(centPlaces)
	total := platform.Add(tier1).Add(tier2).RoundDown(centPlaces)
	platformRounded := total.Sub(tier1Rounded).Sub(tier2Rounded)

	b := Breakdown{
		Profit:        profit,
		PlatformShare: platformRounded,
		Tier1Share:    tier1Rounded,
		Tier2Share:    tier2Rounded,
		Total:         total,
		UserRetained:  profit.Sub(total),
		FloorApplied:  floorApplied,
	}
	if len(chain) >= 1 {
		b.Tier1Account = chain[0]
	}
	if len(chain) >= 2 {
		b.Tier2Account = chain[1]
	}
	return b, nil
}

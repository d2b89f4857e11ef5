// Package commission computes the custody-fee split between the platform and
// the referral upline for a realized trading profit.
package commission

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNegativeProfit is returned when a negative profit is passed to Compute.
// Fee distribution is defined only for gains; losing outcomes are modeled
// upstream as zero profit.
var ErrNegativeProfit = errors.New("profit must be non-negative")

// RateTable is the immutable rate configuration for one computation. It is
// passed explicitly into Compute rather than read from global settings.
type RateTable struct {
	Platform      decimal.Decimal // platform share of profit
	Tier1         decimal.Decimal // direct referrer share
	Tier2         decimal.Decimal // second-level referrer share
	UserFloor     decimal.Decimal // minimum fraction of profit the user retains
	FloorPlatform decimal.Decimal // platform share applied when the floor rule fires
}

// DefaultRateTable returns the standard rates: platform 10%, tier-1 20%,
// tier-2 10%, with the user guaranteed at least 50% of profit.
func DefaultRateTable() RateTable {
	return RateTable{
		Platform:      decimal.NewFromFloat(0.10),
		Tier1:         decimal.NewFromFloat(0.20),
		Tier2:         decimal.NewFromFloat(0.10),
		UserFloor:     decimal.NewFromFloat(0.50),
		FloorPlatform: decimal.NewFromFloat(0.30),
	}
}

// Breakdown is the result of one fee computation. All shares are rounded to
// the cent; residual cents from rounding sit in PlatformShare so that
// PlatformShare + Tier1Share + Tier2Share == Total exactly.
type Breakdown struct {
	Profit        decimal.Decimal `json:"profit"`
	PlatformShare decimal.Decimal `json:"platform_share"`
	Tier1Account  string          `json:"tier1_account,omitempty"`
	Tier1Share    decimal.Decimal `json:"tier1_share"`
	Tier2Account  string          `json:"tier2_account,omitempty"`
	Tier2Share    decimal.Decimal `json:"tier2_share"`
	Total         decimal.Decimal `json:"total"`
	UserRetained  decimal.Decimal `json:"user_retained"`
	FloorApplied  bool            `json:"floor_applied"`
}

// Zero returns an all-zero breakdown for the given profit.
func Zero(profit decimal.Decimal) Breakdown {
	return Breakdown{
		Profit:        profit,
		PlatformShare: decimal.Zero,
		Tier1Share:    decimal.Zero,
		Tier2Share:    decimal.Zero,
		Total:         decimal.Zero,
		UserRetained:  profit,
	}
}

// Package pricing implements per-instrument trading rules: lot sizes,
// tick rounding, price cage bounds, slippage, and fees.
//
// Design rules:
//   - Rules are pure functions of the security and the input value.
//   - Buy amounts round down; a result below the minimum lot is zero and
//     gets rejected downstream.
//   - Sell-side permits an odd-lot sell of the full closeable amount.
package pricing

import "github.com/parachutel/bullet-trade/internal/market"

// LotRule is the minimum order size and increment for an instrument.
type LotRule struct {
	MinLot int64
	Step   int64
}

// LotRuleFor returns the lot rule for a security.
//
// Defaults by board:
//   - standard stock on XSHE/XSHG: min 100, step 100
//   - STAR market (688*):          min 200, step 1
//   - convertible bond (11*/12*):  min 10,  step 10
//   - Beijing:                     min 100, step 1
func LotRuleFor(sec market.Security) LotRule {
	switch {
	case sec.IsSTAR():
		return LotRule{MinLot: 200, Step: 1}
	case sec.IsConvertibleBond():
		return LotRule{MinLot: 10, Step: 10}
	case sec.Exchange == market.ExchangeBeijing:
		return LotRule{MinLot: 100, Step: 1}
	default:
		return LotRule{MinLot: 100, Step: 100}
	}
}

// RoundBuy floors a requested buy amount to minLot + k*step.
// Amounts below the minimum lot round to zero.
func (r LotRule) RoundBuy(amount int64) int64 {
	if amount < r.MinLot {
		return 0
	}
	return r.MinLot + (amount-r.MinLot)/r.Step*r.Step
}

// RoundSell adjusts a requested sell amount against the closeable
// holding. Selling the entire closeable amount is always permitted even
// when it is an odd lot; anything less floors to the nearest step.
func (r LotRule) RoundSell(amount, closeable int64) int64 {
	if amount <= 0 || closeable <= 0 {
		return 0
	}
	if amount >= closeable {
		return closeable
	}
	return amount / r.Step * r.Step
}

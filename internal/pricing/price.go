// Package pricing - price.go covers tick rounding, the price cage, and
// slippage adjustment.
package pricing

import (
	"math"

	"github.com/parachutel/bullet-trade/internal/market"
)

// Side distinguishes buy from sell adjustments.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// TickSize returns the price step for a security at a given price level.
// ETFs tick at 0.001; shares tick at 0.01 when priced >= 1 and 0.001
// below that.
func TickSize(typ market.SecurityType, price float64) float64 {
	if typ == market.TypeETF {
		return 0.001
	}
	if price < 1 {
		return 0.001
	}
	return 0.01
}

// RoundToTick snaps a price onto the tick grid. Buys round up to the
// next tick, sells round down.
func RoundToTick(price, tick float64, side Side) float64 {
	steps := price / tick
	if side == Buy {
		return math.Ceil(steps-1e-9) * tick
	}
	return math.Floor(steps+1e-9) * tick
}

// Cage is the acceptable price band around a match reference price.
// Buys above Upper and sells below Lower are rejected.
type Cage struct {
	Lower float64
	Upper float64
}

// CageFor computes the price cage for a security around ref.
// Main boards use ±2%; Beijing uses the wider of ±5% and ±0.1.
func CageFor(sec market.Security, ref float64) Cage {
	if sec.Exchange == market.ExchangeBeijing {
		return Cage{
			Lower: math.Min(0.95*ref, ref-0.1),
			Upper: math.Max(1.05*ref, ref+0.1),
		}
	}
	return Cage{Lower: 0.98 * ref, Upper: 1.02 * ref}
}

// Clamp bounds a price into the cage.
func (c Cage) Clamp(price float64) float64 {
	if price < c.Lower {
		return c.Lower
	}
	if price > c.Upper {
		return c.Upper
	}
	return price
}

// Slippage is the configurable percent drift applied to the reference
// price before cage clamping and tick rounding.
type Slippage struct {
	BuyPct  float64 // e.g. 0.001 pushes buys 0.1% up
	SellPct float64 // e.g. 0.001 pushes sells 0.1% down
}

// DefaultSlippage is a small adverse drift on both sides.
func DefaultSlippage() Slippage {
	return Slippage{BuyPct: 0.0005, SellPct: 0.0005}
}

// Apply drifts ref against the order's side.
func (s Slippage) Apply(ref float64, side Side) float64 {
	if side == Buy {
		return ref * (1 + s.BuyPct)
	}
	return ref * (1 - s.SellPct)
}

// ProtectPrice is the worst acceptable price for a market order:
// ref*(1+pct) for buys, ref*(1-pct) for sells, clamped to the cage.
func ProtectPrice(sec market.Security, ref, pct float64, side Side) float64 {
	var p float64
	if side == Buy {
		p = ref * (1 + pct)
	} else {
		p = ref * (1 - pct)
	}
	return CageFor(sec, ref).Clamp(p)
}

// AdjustedPrice runs the full buy/sell price pipeline: slippage, cage
// clamping, then tick rounding.
func AdjustedPrice(sec market.Security, typ market.SecurityType, ref float64, slip Slippage, side Side) float64 {
	p := slip.Apply(ref, side)
	p = CageFor(sec, ref).Clamp(p)
	return RoundToTick(p, TickSize(typ, p), side)
}

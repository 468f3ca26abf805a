// Package pricing - fees.go computes commission and stamp tax.
//
// Money amounts go through decimal arithmetic so the 5-yuan commission
// floor and the stamp-tax basis round the way a broker statement does.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/parachutel/bullet-trade/internal/market"
)

// CostConfig overrides the default commission schedule, set via the
// strategy's set_order_cost option.
type CostConfig struct {
	CommissionRate float64
	CommissionMin  float64
	StampTaxRate   float64
}

// DefaultCosts is the standard schedule: 0.03% commission with a 5 yuan
// minimum, 0.1% sell-side stamp tax.
func DefaultCosts() CostConfig {
	return CostConfig{
		CommissionRate: 0.0003,
		CommissionMin:  5,
		StampTaxRate:   0.001,
	}
}

// Fees is the cost breakdown of one fill.
type Fees struct {
	Commission float64
	Tax        float64
}

// Total returns commission plus tax.
func (f Fees) Total() float64 {
	return f.Commission + f.Tax
}

// FeesFor computes the fees for a fill of amount shares at price.
// Sell-side stock trades pay stamp tax; ETFs and funds are exempt.
func FeesFor(cfg CostConfig, typ market.SecurityType, side Side, amount int64, price float64) Fees {
	value := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(amount))

	commission := value.Mul(decimal.NewFromFloat(cfg.CommissionRate))
	minC := decimal.NewFromFloat(cfg.CommissionMin)
	if commission.LessThan(minC) {
		commission = minC
	}

	fees := Fees{Commission: commission.Round(2).InexactFloat64()}

	if side == Sell && typ == market.TypeStock {
		fees.Tax = value.Mul(decimal.NewFromFloat(cfg.StampTaxRate)).Round(2).InexactFloat64()
	}
	return fees
}

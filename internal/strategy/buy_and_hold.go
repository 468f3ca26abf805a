// Package strategy - buy_and_hold.go is the simplest complete strategy:
// spend a fixed fraction of capital on one security at the first open
// and hold it.
package strategy

import (
	"context"

	"github.com/parachutel/bullet-trade/internal/engine"
	"github.com/parachutel/bullet-trade/internal/market"
)

func init() {
	Registry["buy_and_hold"] = func() engine.Strategy {
		return &BuyAndHold{
			Security: market.MustParseSecurity("600519.XSHG"),
			Fraction: 0.9,
		}
	}
}

// BuyAndHold buys once and holds for the rest of the run.
type BuyAndHold struct {
	engine.BaseStrategy

	Security market.Security
	// Fraction of the capital base to deploy.
	Fraction float64
}

// Initialize schedules the single entry at the first session open.
func (s *BuyAndHold) Initialize(ctx *engine.Context) error {
	_, err := ctx.RunDaily("entry", func(_ context.Context) error {
		if _, done := ctx.G().Get("entered"); done {
			return nil
		}

		value := ctx.Portfolio().CapitalBase() * s.Fraction
		order, err := ctx.OrderValue(s.Security, value)
		if err != nil {
			ctx.Log().Printf("entry failed: %v", err)
			return nil
		}

		ctx.G().Set("entered", true)
		ctx.Log().Printf("entered %s: %d @ %.2f", s.Security, order.FilledAmount, order.AvgFillPrice)
		return nil
	}, "open")
	return err
}

// AfterTradingEnd reports the day's valuation.
func (s *BuyAndHold) AfterTradingEnd(ctx *engine.Context) error {
	pf := ctx.Portfolio()
	ctx.Log().Printf("%s total=%.2f cash=%.2f returns=%.4f",
		ctx.Now().Format("2006-01-02"), pf.TotalValue(), pf.Cash(), pf.Returns())
	return nil
}

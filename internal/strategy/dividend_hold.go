// Package strategy - dividend_hold.go holds a dividend payer and tracks
// the cash paid in by corporate actions, rebalancing monthly.
package strategy

import (
	"context"

	"github.com/parachutel/bullet-trade/internal/engine"
	"github.com/parachutel/bullet-trade/internal/market"
)

func init() {
	Registry["dividend_hold"] = func() engine.Strategy {
		return &DividendHold{
			Security: market.MustParseSecurity("601318.XSHG"),
			Target:   1200,
		}
	}
}

// DividendHold keeps a fixed share target in one dividend-paying stock
// and records the dividend cash the position accrues.
type DividendHold struct {
	engine.BaseStrategy

	Security market.Security
	Target   int64
}

// Initialize schedules a monthly top-up back to the target holding.
func (s *DividendHold) Initialize(ctx *engine.Context) error {
	_, err := ctx.RunMonthly("rebalance", func(_ context.Context) error {
		order, err := ctx.OrderTarget(s.Security, s.Target)
		if err != nil {
			ctx.Log().Printf("rebalance failed: %v", err)
			return nil
		}
		if order != nil {
			ctx.Log().Printf("rebalanced %s to %d shares", s.Security, s.Target)
		}
		return nil
	}, 1, "open+30m")
	return err
}

// BeforeTradingStart watches the cash ledger for dividend pay-ins.
// Cash movements between two before-opens without any trades are
// corporate-action postings.
func (s *DividendHold) BeforeTradingStart(ctx *engine.Context) error {
	cash := ctx.Portfolio().Cash()
	trades := int64(len(ctx.Portfolio().Trades()))

	prevCash, hadCash := ctx.G().Get("last_cash")
	prevTrades, _ := ctx.G().Get("last_trades")
	if hadCash && prevTrades == trades {
		if delta := cash - prevCash.(float64); delta > 0 {
			accrued := 0.0
			if v, ok := ctx.G().Get("dividends"); ok {
				accrued = v.(float64)
			}
			ctx.G().Set("dividends", accrued+delta)
			ctx.Log().Printf("dividend pay-in %.2f (accrued %.2f)", delta, accrued+delta)
		}
	}
	ctx.G().Set("last_cash", cash)
	ctx.G().Set("last_trades", trades)
	return nil
}

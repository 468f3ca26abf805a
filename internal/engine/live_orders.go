// Package engine - live_orders.go routes context order calls to the
// broker in live mode, mirroring fills into the local portfolio.
package engine

import (
	"context"
	"fmt"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
	"github.com/parachutel/bullet-trade/internal/pricing"
	"github.com/parachutel/bullet-trade/internal/risk"
)

// liveOrders implements orderAPI over the broker router.
type liveOrders struct {
	l *Live
}

// SetSlippage is accepted for API parity; live fills price at the
// exchange, so slippage only affects backtests.
func (lo *liveOrders) SetSlippage(pricing.Slippage) {}

func (lo *liveOrders) SetCosts(c pricing.CostConfig) { lo.l.costs = c }

func (lo *liveOrders) OrderShares(sec market.Security, amount int64, style portfolio.Style) (*portfolio.Order, error) {
	if amount == 0 {
		return nil, fmt.Errorf("engine: zero amount for %s", sec)
	}

	side := pricing.Buy
	abs := amount
	if amount < 0 {
		side = pricing.Sell
		abs = -amount
	}

	rule := pricing.LotRuleFor(sec)
	if side == pricing.Buy {
		abs = rule.RoundBuy(abs)
		if abs == 0 {
			return nil, fmt.Errorf("engine: amount %d below minimum lot %d for %s", amount, rule.MinLot, sec)
		}
	} else {
		var closeable int64
		if p, held := lo.l.pf.Position(sec); held {
			closeable = p.CloseableAmount
		}
		abs = rule.RoundSell(abs, closeable)
		if abs == 0 {
			return nil, &portfolio.InsufficientError{Resource: "closeable", Need: float64(-amount), Have: float64(closeable)}
		}
	}

	if lo.l.quotes.Halted(sec) {
		lo.l.logger.Printf("[live] WARNING: %s is halted, order not routed", sec)
		order := portfolio.NewOrder(sec, side, style, abs, lo.l.Now())
		order.Status = portfolio.StatusRejected
		order.Message = "halted"
		lo.l.pf.RecordOrder(order)
		return order, nil
	}

	// Risk check at the reference price.
	if ref, ok := lo.l.quotes.RefPrice(sec); ok {
		intent := risk.Intent{Security: sec, Side: side, Amount: abs, Price: ref}
		if err := lo.l.checker.Validate(intent, lo.l.pf); err != nil {
			order := portfolio.NewOrder(sec, side, style, abs, lo.l.Now())
			order.Status = portfolio.StatusRejected
			order.Message = err.Error()
			lo.l.pf.RecordOrder(order)
			return order, err
		}
	}

	price := 0.0
	if style.Limit {
		price = style.Price
	}

	order := portfolio.NewOrder(sec, side, style, abs, lo.l.Now())
	order.Status = portfolio.StatusSubmitted
	lo.l.pf.RecordOrder(order)
	mtxOrders.WithLabelValues(side.String()).Inc()

	st, err := lo.l.router.Place(context.Background(), sec, side.String(), abs, price)
	if err != nil {
		order.Status = portfolio.StatusRejected
		order.Message = err.Error()
		return order, err
	}

	order.ExternalID = st.OrderID
	if st.Status.Terminal() {
		applyExternalFill(lo.l.pf, order, st, lo.l.quotes, lo.l.costs, lo.l.Now())
		if st.Status == portfolio.StatusRejected {
			order.Message = st.Message
		}
	}
	// Non-terminal statuses stay submitted; the reconciliation loop
	// finishes them.
	return order, nil
}

func (lo *liveOrders) OrderValue(sec market.Security, value float64, style portfolio.Style) (*portfolio.Order, error) {
	ref, ok := lo.l.quotes.RefPrice(sec)
	if !ok || ref <= 0 {
		return nil, fmt.Errorf("engine: no quote for %s", sec)
	}
	amount := int64(value / ref)
	if amount == 0 {
		return nil, fmt.Errorf("engine: value %.2f below one share of %s", value, sec)
	}
	return lo.OrderShares(sec, amount, style)
}

func (lo *liveOrders) OrderTarget(sec market.Security, target int64, style portfolio.Style) (*portfolio.Order, error) {
	var current int64
	if p, held := lo.l.pf.Position(sec); held {
		current = p.TotalAmount
	}
	delta := target - current
	if delta == 0 {
		return nil, nil
	}
	return lo.OrderShares(sec, delta, style)
}

func (lo *liveOrders) OrderTargetValue(sec market.Security, value float64, style portfolio.Style) (*portfolio.Order, error) {
	ref, ok := lo.l.quotes.RefPrice(sec)
	if !ok || ref <= 0 {
		return nil, fmt.Errorf("engine: no quote for %s", sec)
	}
	return lo.OrderTarget(sec, int64(value/ref), style)
}

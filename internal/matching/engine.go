// Package matching implements the bar-synchronous order matching engine.
//
// Design rules:
//   - Matching uses one reference price per bar; there is no order-book
//     depth model.
//   - The price pipeline is slippage, then cage clamping, then tick
//     rounding.
//   - Market orders either clear the cage in full or get rejected;
//     sells fill up to the closeable amount with the remainder
//     cancelled.
//   - Submission on a halted security is rejected with a warning, not
//     an error.
package matching

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
	"github.com/parachutel/bullet-trade/internal/pricing"
	"github.com/parachutel/bullet-trade/internal/risk"
)

// ErrHalted marks a submission on a halted security.
var ErrHalted = errors.New("matching: security is halted")

// QuoteSource supplies the match reference price and halt state for the
// current timepoint. The driver implements it over bar data (backtest)
// or live snapshots.
type QuoteSource interface {
	// RefPrice returns the match reference price for sec at the current
	// virtual time. ok is false when no price is known.
	RefPrice(sec market.Security) (price float64, ok bool)

	// Halted reports whether sec is halted on the current trade day.
	Halted(sec market.Security) bool

	// TypeOf classifies sec for tick and tax rules.
	TypeOf(sec market.Security) market.SecurityType
}

// Engine matches orders against the current quote state and settles
// fills into the portfolio.
type Engine struct {
	pf       *portfolio.Portfolio
	quotes   QuoteSource
	checker  *risk.Checker
	costs    pricing.CostConfig
	slippage pricing.Slippage
	// protectPct bounds market-order fills; see pricing.ProtectPrice.
	protectPct float64

	now    func() time.Time // virtual clock, injected by the driver
	logger *log.Logger
}

// NewEngine creates a matching engine. checker may be nil to disable
// risk vetoes.
func NewEngine(pf *portfolio.Portfolio, quotes QuoteSource, checker *risk.Checker, now func() time.Time, logger *log.Logger) *Engine {
	return &Engine{
		pf:         pf,
		quotes:     quotes,
		checker:    checker,
		costs:      pricing.DefaultCosts(),
		slippage:   pricing.DefaultSlippage(),
		protectPct: 0.02,
		now:        now,
		logger:     logger,
	}
}

// SetSlippage replaces the slippage model (set_slippage).
func (e *Engine) SetSlippage(s pricing.Slippage) { e.slippage = s }

// SetCosts replaces the commission schedule (set_order_cost).
func (e *Engine) SetCosts(c pricing.CostConfig) { e.costs = c }

// OrderShares submits an order for a signed share amount: positive buys,
// negative sells. The amount passes lot rounding before submission.
func (e *Engine) OrderShares(sec market.Security, amount int64, style portfolio.Style) (*portfolio.Order, error) {
	if amount == 0 {
		return nil, fmt.Errorf("matching: zero amount for %s", sec)
	}
	if amount > 0 {
		return e.submit(sec, pricing.Buy, amount, style)
	}
	return e.submit(sec, pricing.Sell, -amount, style)
}

// OrderValue buys or sells approximately cash worth of sec at the
// current reference price.
func (e *Engine) OrderValue(sec market.Security, value float64, style portfolio.Style) (*portfolio.Order, error) {
	ref, ok := e.quotes.RefPrice(sec)
	if !ok || ref <= 0 {
		return nil, fmt.Errorf("matching: no reference price for %s", sec)
	}
	amount := int64(value / ref)
	if amount == 0 {
		return nil, fmt.Errorf("matching: value %.2f below one share of %s", value, sec)
	}
	return e.OrderShares(sec, amount, style)
}

// OrderTarget adjusts the holding of sec toward target total shares.
// The delta is computed against the total amount, not the closeable
// amount.
func (e *Engine) OrderTarget(sec market.Security, target int64, style portfolio.Style) (*portfolio.Order, error) {
	var current int64
	if p, held := e.pf.Position(sec); held {
		current = p.TotalAmount
	}
	delta := target - current
	if delta == 0 {
		return nil, nil
	}
	return e.OrderShares(sec, delta, style)
}

// OrderTargetValue adjusts the holding of sec toward a target market
// value.
func (e *Engine) OrderTargetValue(sec market.Security, value float64, style portfolio.Style) (*portfolio.Order, error) {
	ref, ok := e.quotes.RefPrice(sec)
	if !ok || ref <= 0 {
		return nil, fmt.Errorf("matching: no reference price for %s", sec)
	}
	return e.OrderTarget(sec, int64(value/ref), style)
}

// submit runs the full lifecycle of one order at the current timepoint.
// The returned order is terminal; err reports rejections alongside the
// order status so strategies can branch on the cause.
func (e *Engine) submit(sec market.Security, side pricing.Side, amount int64, style portfolio.Style) (*portfolio.Order, error) {
	order := portfolio.NewOrder(sec, side, style, amount, e.now())
	e.pf.RecordOrder(order)

	if e.quotes.Halted(sec) {
		e.reject(order, "halted")
		e.logger.Printf("[matching] WARNING: %s is halted, order rejected", sec)
		return order, ErrHalted
	}

	ref, ok := e.quotes.RefPrice(sec)
	if !ok || ref <= 0 {
		e.reject(order, "no reference price")
		return order, fmt.Errorf("matching: no reference price for %s", sec)
	}

	rule := pricing.LotRuleFor(sec)
	typ := e.quotes.TypeOf(sec)

	if side == pricing.Buy {
		return e.fillBuy(order, ref, rule, typ)
	}
	return e.fillSell(order, ref, rule, typ)
}

func (e *Engine) fillBuy(order *portfolio.Order, ref float64, rule pricing.LotRule, typ market.SecurityType) (*portfolio.Order, error) {
	amount := rule.RoundBuy(order.Amount)
	if amount == 0 {
		e.reject(order, fmt.Sprintf("amount %d below minimum lot %d", order.Amount, rule.MinLot))
		return order, fmt.Errorf("matching: %s", order.Message)
	}

	price := pricing.AdjustedPrice(order.Security, typ, ref, e.slippage, pricing.Buy)

	// Limit orders must clear the adjusted price; market orders must
	// clear their protect band.
	if order.Style.Limit {
		if order.Style.Price < price {
			e.reject(order, fmt.Sprintf("limit %.3f below required buy price %.3f", order.Style.Price, price))
			return order, fmt.Errorf("matching: %s", order.Message)
		}
	} else {
		pct := e.protectPct
		if order.Style.ProtectPct > 0 {
			pct = order.Style.ProtectPct
		}
		protect := pricing.ProtectPrice(order.Security, ref, pct, pricing.Buy)
		if protect < price {
			e.reject(order, fmt.Sprintf("protect price %.3f below required buy price %.3f", protect, price))
			return order, fmt.Errorf("matching: %s", order.Message)
		}
	}

	if err := e.validateRisk(order, amount, price); err != nil {
		return order, err
	}

	fees := pricing.FeesFor(e.costs, typ, pricing.Buy, amount, price)
	if err := e.pf.ApplyBuy(order.Security, amount, price, fees, e.now(), order.ID); err != nil {
		e.reject(order, err.Error())
		return order, err
	}

	e.fill(order, amount, price, fees)
	return order, nil
}

func (e *Engine) fillSell(order *portfolio.Order, ref float64, rule pricing.LotRule, typ market.SecurityType) (*portfolio.Order, error) {
	var closeable int64
	if p, held := e.pf.Position(order.Security); held {
		closeable = p.CloseableAmount
	}

	amount := rule.RoundSell(order.Amount, closeable)
	if amount == 0 {
		err := &portfolio.InsufficientError{Resource: "closeable", Need: float64(order.Amount), Have: float64(closeable)}
		e.reject(order, err.Error())
		return order, err
	}

	price := pricing.AdjustedPrice(order.Security, typ, ref, e.slippage, pricing.Sell)

	if order.Style.Limit && order.Style.Price > price {
		e.reject(order, fmt.Sprintf("limit %.3f above achievable sell price %.3f", order.Style.Price, price))
		return order, fmt.Errorf("matching: %s", order.Message)
	}

	if err := e.validateRisk(order, amount, price); err != nil {
		return order, err
	}

	fees := pricing.FeesFor(e.costs, typ, pricing.Sell, amount, price)
	if err := e.pf.ApplySell(order.Security, amount, price, fees, e.now(), order.ID); err != nil {
		e.reject(order, err.Error())
		return order, err
	}

	e.fill(order, amount, price, fees)
	return order, nil
}

func (e *Engine) validateRisk(order *portfolio.Order, amount int64, price float64) error {
	if e.checker == nil {
		return nil
	}
	intent := risk.Intent{Security: order.Security, Side: order.Side, Amount: amount, Price: price}
	if err := e.checker.Validate(intent, e.pf); err != nil {
		e.reject(order, err.Error())
		return err
	}
	return nil
}

// fill stamps the terminal fill state. A sell that covered less than the
// requested amount ends partial: the remainder is cancelled.
func (e *Engine) fill(order *portfolio.Order, amount int64, price float64, fees pricing.Fees) {
	order.FilledAmount = amount
	order.AvgFillPrice = price
	order.Commission = fees.Commission
	order.Tax = fees.Tax
	if amount < order.Amount {
		order.Status = portfolio.StatusPartial
		order.Message = fmt.Sprintf("filled %d of %d, remainder cancelled", amount, order.Amount)
	} else {
		order.Status = portfolio.StatusFilled
	}
	e.logger.Printf("[matching] %s %s %d @ %.3f commission=%.2f tax=%.2f",
		order.Side, order.Security, amount, price, fees.Commission, fees.Tax)
}

func (e *Engine) reject(order *portfolio.Order, msg string) {
	order.Status = portfolio.StatusRejected
	order.Message = msg
}

// RefValue returns amount*ref for sizing helpers that want to reason
// about an order's notional before submission.
func (e *Engine) RefValue(sec market.Security, amount int64) (float64, error) {
	ref, ok := e.quotes.RefPrice(sec)
	if !ok || ref <= 0 {
		return 0, fmt.Errorf("matching: no reference price for %s", sec)
	}
	return math.Abs(float64(amount)) * ref, nil
}

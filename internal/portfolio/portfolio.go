// Package portfolio - portfolio.go implements positions and the cash
// ledger.
package portfolio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/pricing"
)

// InsufficientError is returned when cash or closeable shares cannot
// cover an order. The portfolio is left unchanged.
type InsufficientError struct {
	Resource string // "cash" or "closeable"
	Need     float64
	Have     float64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("portfolio: insufficient %s: need %.2f, have %.2f", e.Resource, e.Need, e.Have)
}

// Position is the holding of one security.
type Position struct {
	Security        market.Security
	TotalAmount     int64
	CloseableAmount int64
	AvgCost         float64
	LastPrice       float64
}

// MarketValue is total amount times last price.
func (p *Position) MarketValue() float64 {
	return float64(p.TotalAmount) * p.LastPrice
}

// Portfolio is the account state: cash, positions, and realized history.
// The driver owns it; strategies observe it through the context.
type Portfolio struct {
	mu sync.RWMutex

	cash        float64
	capitalBase float64
	positions   map[market.Security]*Position

	orders []*Order
	trades []Trade
}

// New creates a portfolio funded with the capital base.
func New(capitalBase float64) *Portfolio {
	return &Portfolio{
		cash:        capitalBase,
		capitalBase: capitalBase,
		positions:   make(map[market.Security]*Position),
	}
}

// Cash returns the free cash balance.
func (pf *Portfolio) Cash() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.cash
}

// CapitalBase returns the starting capital.
func (pf *Portfolio) CapitalBase() float64 {
	return pf.capitalBase
}

// Position returns a copy of the position for sec, if held.
func (pf *Portfolio) Position(sec market.Security) (Position, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	p, ok := pf.positions[sec]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns a snapshot copy of all positions.
func (pf *Portfolio) Positions() map[market.Security]Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make(map[market.Security]Position, len(pf.positions))
	for sec, p := range pf.positions {
		out[sec] = *p
	}
	return out
}

// TotalValue is cash plus the mark-to-market value of all positions.
func (pf *Portfolio) TotalValue() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	total := pf.cash
	for _, p := range pf.positions {
		total += p.MarketValue()
	}
	return total
}

// Returns is the return since inception.
func (pf *Portfolio) Returns() float64 {
	return pf.TotalValue()/pf.capitalBase - 1
}

// RecordOrder appends an order to the book.
func (pf *Portfolio) RecordOrder(o *Order) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.orders = append(pf.orders, o)
}

// Orders returns the order book (shared slice; callers must not mutate).
func (pf *Portfolio) Orders() []*Order {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make([]*Order, len(pf.orders))
	copy(out, pf.orders)
	return out
}

// OpenOrders returns orders that have not reached a terminal status.
func (pf *Portfolio) OpenOrders() []*Order {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var out []*Order
	for _, o := range pf.orders {
		if !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out
}

// Trades returns a copy of the fill history.
func (pf *Portfolio) Trades() []Trade {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make([]Trade, len(pf.trades))
	copy(out, pf.trades)
	return out
}

// ApplyBuy settles a buy fill: cash out, average cost in. Fees fold into
// the cost basis. The bought shares do not become closeable until the
// next trade day's before-open.
func (pf *Portfolio) ApplyBuy(sec market.Security, amount int64, price float64, fees pricing.Fees, at time.Time, orderID string) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	cost := float64(amount)*price + fees.Total()
	if cost > pf.cash {
		return &InsufficientError{Resource: "cash", Need: cost, Have: pf.cash}
	}

	pf.cash -= cost

	p, ok := pf.positions[sec]
	if !ok {
		p = &Position{Security: sec}
		pf.positions[sec] = p
	}

	newTotal := p.TotalAmount + amount
	p.AvgCost = (p.AvgCost*float64(p.TotalAmount) + float64(amount)*price + fees.Total()) / float64(newTotal)
	p.TotalAmount = newTotal
	p.LastPrice = price

	pf.trades = append(pf.trades, Trade{
		Time: at, Security: sec, Side: pricing.Buy,
		Amount: amount, Price: price,
		Commission: fees.Commission, Tax: fees.Tax, OrderID: orderID,
	})
	return nil
}

// ApplySell settles a sell fill: shares out of both total and closeable,
// net proceeds into cash. Average cost is unchanged; realized P&L lives
// in the trade history.
func (pf *Portfolio) ApplySell(sec market.Security, amount int64, price float64, fees pricing.Fees, at time.Time, orderID string) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	p, ok := pf.positions[sec]
	if !ok || p.CloseableAmount < amount {
		have := int64(0)
		if ok {
			have = p.CloseableAmount
		}
		return &InsufficientError{Resource: "closeable", Need: float64(amount), Have: float64(have)}
	}

	p.TotalAmount -= amount
	p.CloseableAmount -= amount
	p.LastPrice = price
	pf.cash += float64(amount)*price - fees.Total()

	if p.TotalAmount == 0 {
		delete(pf.positions, sec)
	}

	pf.trades = append(pf.trades, Trade{
		Time: at, Security: sec, Side: pricing.Sell,
		Amount: amount, Price: price,
		Commission: fees.Commission, Tax: fees.Tax, OrderID: orderID,
	})
	return nil
}

// UpdateCloseable applies the T+1 rule at before-open: every position's
// closeable amount becomes its total amount.
func (pf *Portfolio) UpdateCloseable() {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	for _, p := range pf.positions {
		p.CloseableAmount = p.TotalAmount
	}
}

// MarkPrice updates the last observed price of a held security.
func (pf *Portfolio) MarkPrice(sec market.Security, price float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if p, ok := pf.positions[sec]; ok && price > 0 {
		p.LastPrice = price
	}
}

// ApplySplit rescales a position's share count by factor, with the cost
// basis scaling inversely. Used by the corporate-action engine.
func (pf *Portfolio) ApplySplit(sec market.Security, factor float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	p, ok := pf.positions[sec]
	if !ok || factor <= 0 || factor == 1 {
		return
	}
	p.TotalAmount = int64(math.Round(float64(p.TotalAmount) * factor))
	p.CloseableAmount = int64(math.Round(float64(p.CloseableAmount) * factor))
	p.AvgCost /= factor
	p.LastPrice /= factor
}

// Deposit credits cash, e.g. a dividend payout.
func (pf *Portfolio) Deposit(amount float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.cash += amount
}

// CheckInvariants verifies the position and valuation identities.
// A violation is a driver-level fatal error.
func (pf *Portfolio) CheckInvariants() error {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	for sec, p := range pf.positions {
		if p.CloseableAmount < 0 || p.CloseableAmount > p.TotalAmount {
			return fmt.Errorf("portfolio: %s closeable %d outside [0, %d]",
				sec, p.CloseableAmount, p.TotalAmount)
		}
	}

	total := pf.cash
	for _, p := range pf.positions {
		total += p.MarketValue()
	}
	if total < 0 {
		return fmt.Errorf("portfolio: total value negative: %.2f", total)
	}
	return nil
}

// DailyRecord is one end-of-day observation of the account.
type DailyRecord struct {
	Date       time.Time
	Cash       float64
	TotalValue float64
	Returns    float64
}

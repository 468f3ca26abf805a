// Package portfolio owns orders, trades, positions, and the cash ledger.
//
// Design rules:
//   - Orders are created by strategy callbacks and never mutated after
//     reaching a terminal status.
//   - Positions appear on first fill and are purged at zero shares.
//   - T+1: shares bought today are excluded from the closeable amount
//     until the next trade day's before-open.
package portfolio

import (
	"time"

	"github.com/google/uuid"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/pricing"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusNew       Status = "new"
	StatusSubmitted Status = "submitted"
	StatusFilled    Status = "filled"
	StatusPartial   Status = "partial"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusPartial, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Style is the order pricing style.
type Style struct {
	Limit bool
	// Price is the limit price for limit orders; market orders leave it
	// zero and use ProtectPct.
	Price float64
	// ProtectPct is the market-order protection band; the order will not
	// fill worse than ref*(1±ProtectPct).
	ProtectPct float64
}

// MarketOrder builds a market style with the given protect percent.
func MarketOrder(protectPct float64) Style {
	return Style{ProtectPct: protectPct}
}

// LimitOrder builds a limit style at the given price.
func LimitOrder(price float64) Style {
	return Style{Limit: true, Price: price}
}

// Order is one order in the book.
type Order struct {
	ID          string
	Security    market.Security
	Side        pricing.Side
	Style       Style
	Amount      int64
	SubmittedAt time.Time
	Status      Status
	// Message carries the rejection or cancellation reason.
	Message string

	FilledAmount int64
	AvgFillPrice float64
	Commission   float64
	Tax          float64

	// ExternalID links a live order to the broker's id.
	ExternalID string
}

// NewOrder creates an order in status new.
func NewOrder(sec market.Security, side pricing.Side, style Style, amount int64, at time.Time) *Order {
	return &Order{
		ID:          uuid.NewString(),
		Security:    sec,
		Side:        side,
		Style:       style,
		Amount:      amount,
		SubmittedAt: at,
		Status:      StatusNew,
	}
}

// Trade is one executed fill.
type Trade struct {
	Time       time.Time
	Security   market.Security
	Side       pricing.Side
	Amount     int64
	Price      float64
	Commission float64
	Tax        float64
	OrderID    string
}

// Package storage defines the record store interfaces and types.
//
// The runtime persists three series for audit and reporting:
//   - daily records (cash, total value, returns per trade day)
//   - trades (every fill with fees)
//   - trade logs (order lifecycle events with reasons)
//
// The engine runs fine without a database; persistence failures are
// logged, never fatal.
package storage

import (
	"context"
	"time"
)

// DailyRecordRow is one end-of-day account observation.
type DailyRecordRow struct {
	ID         int64
	RunID      string
	Date       time.Time
	Cash       float64
	TotalValue float64
	Returns    float64
	CreatedAt  time.Time
}

// TradeRow is one executed fill.
type TradeRow struct {
	ID         int64
	RunID      string
	Time       time.Time
	Security   string
	Side       string // "buy" or "sell"
	Amount     int64
	Price      float64
	Commission float64
	Tax        float64
	OrderID    string
	CreatedAt  time.Time
}

// TradeLogRow is one order lifecycle event for the audit trail.
type TradeLogRow struct {
	ID         int64
	RunID      string
	Timestamp  time.Time
	Security   string
	Action     string // "SUBMITTED", "FILLED", "REJECTED", ...
	ReasonCode string
	Message    string
}

// Store is the persistence contract used by the drivers.
type Store interface {
	SaveDailyRecord(ctx context.Context, rec *DailyRecordRow) error
	GetDailyRecords(ctx context.Context, runID string) ([]DailyRecordRow, error)

	SaveTrade(ctx context.Context, trade *TradeRow) error
	GetTrades(ctx context.Context, runID string) ([]TradeRow, error)

	SaveTradeLog(ctx context.Context, entry *TradeLogRow) error

	Ping(ctx context.Context) error
	Close()
}

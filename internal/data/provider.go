// Package data defines the market-data provider contract the runtime
// depends on, and the in-process providers used for backtests and tests.
//
// Design rules:
//   - Market data is not the broker API; the core calls these operations
//     and nothing else.
//   - Provider credentialing, caching, and wire formats live outside the
//     core; implementations must be safe to call from the driver's
//     goroutine.
//   - Missing halt information is treated as halted (conservative).
package data

import (
	"context"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
)

// Adjustment selects the price-adjustment mode of a bar series.
type Adjustment string

const (
	AdjustNone Adjustment = "none"
	AdjustPre  Adjustment = "pre"
)

// Bar is one OHLCV unit for a security at a frequency.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	// Paused is the provider's halt flag for the bar's day; -1 when the
	// provider does not supply one.
	Paused int
}

// Halted reports whether the bar indicates a trading halt: zero volume
// or an explicit paused flag. A bar with no volume and no flag counts
// as halted.
func (b Bar) Halted() bool {
	if b.Paused == 1 {
		return true
	}
	return b.Volume == 0
}

// SecurityInfo is provider metadata for one listed security.
type SecurityInfo struct {
	Security    market.Security
	DisplayName string
	Type        market.SecurityType
	StartDate   time.Time
	EndDate     time.Time
}

// Snapshot is the live per-security quote state, separate from bars.
type Snapshot struct {
	LastPrice float64
	HighLimit float64
	LowLimit  float64
	Paused    bool
}

// CorporateAction is one dividend/split event on an ex-date.
type CorporateAction struct {
	Security     market.Security
	ExDate       time.Time
	PerBase      int64   // 1 for funds, 10 for stocks
	BonusPreTax  float64 // cash per PerBase shares, pre tax
	ScaleFactor  float64 // share multiplier; 1 means no split
	SecurityType market.SecurityType
}

// PriceQuery bounds a GetPrice call. Either Count or Start must be set;
// End defaults to the driver's current day.
type PriceQuery struct {
	Start            time.Time
	End              time.Time
	Count            int
	Frequency        market.Frequency
	FQ               Adjustment
	PreFactorRefDate time.Time
}

// Provider is the complete data dependency of the core.
type Provider interface {
	// GetPrice returns bar series per security for the query window.
	GetPrice(ctx context.Context, secs []market.Security, q PriceQuery) (map[market.Security][]Bar, error)

	// GetTradeDays enumerates exchange trading days.
	GetTradeDays(ctx context.Context, start, end time.Time) ([]time.Time, error)

	// GetAllSecurities returns metadata for every listed security.
	GetAllSecurities(ctx context.Context) (map[market.Security]SecurityInfo, error)

	// GetIndexStocks returns the constituents of an index.
	GetIndexStocks(ctx context.Context, index market.Security) ([]market.Security, error)

	// GetSplitDividend returns corporate actions for a security in a window.
	GetSplitDividend(ctx context.Context, sec market.Security, start, end time.Time) ([]CorporateAction, error)

	// GetLiveCurrent returns the live quote snapshot (live mode only).
	GetLiveCurrent(ctx context.Context, sec market.Security) (Snapshot, error)
}

// DayBar finds the daily bar for a specific trade day in a series.
func DayBar(bars []Bar, day time.Time) (Bar, bool) {
	d := market.Midnight(day)
	for _, b := range bars {
		if market.Midnight(b.Time).Equal(d) {
			return b, true
		}
	}
	return Bar{}, false
}

// HaltedOn reports whether sec is halted on day according to its daily
// bars. A day with no bar at all is treated as halted.
func HaltedOn(bars []Bar, day time.Time) bool {
	b, ok := DayBar(bars, day)
	if !ok {
		return true
	}
	return b.Halted()
}

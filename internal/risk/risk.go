// Package risk implements hard order-level guardrails.
//
// Design rules:
//   - Risk rules cannot be overridden by the strategy.
//   - The checker only vetoes orders against thresholds; it never
//     resizes or reprices them.
//   - Sell orders that reduce exposure always pass.
//   - Every rejection is counted for the day's report.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
	"github.com/parachutel/bullet-trade/internal/pricing"
)

// RejectionReason explains why an order was vetoed.
type RejectionReason struct {
	Rule    string
	Message string
}

func (r RejectionReason) Error() string {
	return fmt.Sprintf("risk rejected [%s]: %s", r.Rule, r.Message)
}

// Limits are the hard thresholds. Zero values disable a check.
type Limits struct {
	MaxOrderValue    float64 // per-order notional cap
	MaxDayOrders     int     // orders per trade day
	MaxDayValue      float64 // total notional per trade day
	MaxHoldings      int     // distinct positions held
	MaxPositionRatio float64 // single position / total value
}

// Intent is the order under validation.
type Intent struct {
	Security market.Security
	Side     pricing.Side
	Amount   int64
	Price    float64
}

// Value is the order's notional.
func (i Intent) Value() float64 {
	return float64(i.Amount) * i.Price
}

// Checker enforces the limits. It is the final gatekeeper before an
// order reaches the matching engine.
type Checker struct {
	mu     sync.Mutex
	limits Limits

	day        time.Time
	dayOrders  int
	dayValue   float64
	rejections int
}

// NewChecker creates a checker with the given limits.
func NewChecker(limits Limits) *Checker {
	return &Checker{limits: limits}
}

// UpdateLimits replaces the limits atomically. Used by live-mode config
// reload.
func (c *Checker) UpdateLimits(limits Limits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits = limits
}

// ResetDay clears the per-day counters at before-open.
func (c *Checker) ResetDay(day time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day = market.Midnight(day)
	c.dayOrders = 0
	c.dayValue = 0
}

// Rejections returns the number of vetoed orders since creation.
func (c *Checker) Rejections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejections
}

// Validate checks an intent against all limits. On approval the per-day
// counters are advanced; on veto the rejection counter is advanced and a
// RejectionReason is returned.
func (c *Checker) Validate(intent Intent, pf *portfolio.Portfolio) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(intent, pf); err != nil {
		c.rejections++
		return err
	}

	c.dayOrders++
	c.dayValue += intent.Value()
	return nil
}

func (c *Checker) check(intent Intent, pf *portfolio.Portfolio) error {
	// Exposure-reducing sells always pass.
	if intent.Side == pricing.Sell {
		return nil
	}

	value := intent.Value()

	if c.limits.MaxOrderValue > 0 && value > c.limits.MaxOrderValue {
		return RejectionReason{
			Rule:    "MAX_ORDER_VALUE",
			Message: fmt.Sprintf("order value %.2f exceeds limit %.2f", value, c.limits.MaxOrderValue),
		}
	}

	if c.limits.MaxDayOrders > 0 && c.dayOrders >= c.limits.MaxDayOrders {
		return RejectionReason{
			Rule:    "MAX_DAY_ORDERS",
			Message: fmt.Sprintf("at order limit: %d/%d", c.dayOrders, c.limits.MaxDayOrders),
		}
	}

	if c.limits.MaxDayValue > 0 && c.dayValue+value > c.limits.MaxDayValue {
		return RejectionReason{
			Rule:    "MAX_DAY_VALUE",
			Message: fmt.Sprintf("day value %.2f would exceed limit %.2f", c.dayValue+value, c.limits.MaxDayValue),
		}
	}

	positions := pf.Positions()
	if c.limits.MaxHoldings > 0 {
		if _, held := positions[intent.Security]; !held && len(positions) >= c.limits.MaxHoldings {
			return RejectionReason{
				Rule:    "MAX_HOLDINGS",
				Message: fmt.Sprintf("at holding limit: %d/%d", len(positions), c.limits.MaxHoldings),
			}
		}
	}

	if c.limits.MaxPositionRatio > 0 {
		existing := 0.0
		if p, held := positions[intent.Security]; held {
			existing = p.MarketValue()
		}
		total := pf.TotalValue()
		if total > 0 && (existing+value)/total > c.limits.MaxPositionRatio {
			return RejectionReason{
				Rule: "MAX_POSITION_RATIO",
				Message: fmt.Sprintf("position would be %.1f%% of portfolio (limit %.1f%%)",
					(existing+value)/total*100, c.limits.MaxPositionRatio*100),
			}
		}
	}

	return nil
}

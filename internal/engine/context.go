// Package engine - context.go is the strategy-facing runtime API.
//
// The driver injects itself into callbacks via the context; no
// component holds a back-reference to the driver.
package engine

import (
	stdctx "context"
	"fmt"
	"log"
	"time"

	"github.com/parachutel/bullet-trade/internal/broker"
	"github.com/parachutel/bullet-trade/internal/data"
	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
	"github.com/parachutel/bullet-trade/internal/pricing"
	"github.com/parachutel/bullet-trade/internal/scheduler"
)

// orderAPI is the order surface both drivers provide to the context.
type orderAPI interface {
	OrderShares(sec market.Security, amount int64, style portfolio.Style) (*portfolio.Order, error)
	OrderValue(sec market.Security, value float64, style portfolio.Style) (*portfolio.Order, error)
	OrderTarget(sec market.Security, target int64, style portfolio.Style) (*portfolio.Order, error)
	OrderTargetValue(sec market.Security, value float64, style portfolio.Style) (*portfolio.Order, error)
	SetSlippage(s pricing.Slippage)
	SetCosts(c pricing.CostConfig)
}

// Context is the published runtime API surface handed to every strategy
// callback.
type Context struct {
	now       func() time.Time
	pf        *portfolio.Portfolio
	orders    orderAPI
	sched     *scheduler.Scheduler
	provider  data.Provider
	current   *CurrentData
	globals   *Globals
	options   *Options
	benchmark market.Security
	logger    *log.Logger

	// subscribe is wired in live mode; nil in backtest.
	subscribe   func(secs []market.Security, kind broker.SubscribeKind) error
	unsubscribe func(secs []market.Security) error

}

// Now returns the current virtual (backtest) or exchange (live) time.
func (c *Context) Now() time.Time { return c.now() }

// Portfolio returns the account state. Read-only by convention: all
// mutation flows through the order APIs.
func (c *Context) Portfolio() *portfolio.Portfolio { return c.pf }

// G returns the strategy's persistent global state.
func (c *Context) G() *Globals { return c.globals }

// Log returns the strategy logger.
func (c *Context) Log() *log.Logger { return c.logger }

// SetBenchmark sets the benchmark security for return comparison.
func (c *Context) SetBenchmark(sec market.Security) { c.benchmark = sec }

// Benchmark returns the configured benchmark security.
func (c *Context) Benchmark() market.Security { return c.benchmark }

// SetOption applies a named runtime option. Unknown keys are logged and
// ignored.
func (c *Context) SetOption(key string, value any) error {
	return c.options.Set(key, value, c.logger)
}

// SetOrderCost replaces the commission schedule.
func (c *Context) SetOrderCost(cfg pricing.CostConfig) { c.orders.SetCosts(cfg) }

// SetSlippage replaces the slippage model.
func (c *Context) SetSlippage(s pricing.Slippage) { c.orders.SetSlippage(s) }

// RunDaily schedules cb at the expression's timepoints on every trade
// day. Registrations made inside a callback take effect the next trade
// day.
func (c *Context) RunDaily(name string, cb scheduler.Callback, expr string) (string, error) {
	return c.sched.RunDaily(name, cb, expr, scheduler.OverlapSkip)
}

// RunDailyOverlap is RunDaily with an explicit overlap policy.
func (c *Context) RunDailyOverlap(name string, cb scheduler.Callback, expr string, overlap scheduler.Overlap) (string, error) {
	return c.sched.RunDaily(name, cb, expr, overlap)
}

// RunWeekly schedules cb on trade days matching the weekday.
func (c *Context) RunWeekly(name string, cb scheduler.Callback, weekday time.Weekday, expr string) (string, error) {
	return c.sched.RunWeekly(name, cb, weekday, expr)
}

// RunMonthly schedules cb once per month on the first trade day with
// day >= monthday.
func (c *Context) RunMonthly(name string, cb scheduler.Callback, monthday int, expr string) (string, error) {
	return c.sched.RunMonthly(name, cb, monthday, expr)
}

// Unschedule removes a scheduled task.
func (c *Context) Unschedule(id string) error { return c.sched.Unschedule(id) }

// UnscheduleAll removes every scheduled task.
func (c *Context) UnscheduleAll() { c.sched.UnscheduleAll() }

// Order buys (positive) or sells (negative) a signed share amount at
// market.
func (c *Context) Order(sec market.Security, amount int64) (*portfolio.Order, error) {
	return c.orders.OrderShares(sec, amount, portfolio.MarketOrder(0))
}

// OrderLimit buys or sells a signed share amount at a limit price.
func (c *Context) OrderLimit(sec market.Security, amount int64, price float64) (*portfolio.Order, error) {
	return c.orders.OrderShares(sec, amount, portfolio.LimitOrder(price))
}

// OrderValue trades approximately value cash worth of sec.
func (c *Context) OrderValue(sec market.Security, value float64) (*portfolio.Order, error) {
	return c.orders.OrderValue(sec, value, portfolio.MarketOrder(0))
}

// OrderTarget trades toward a target total share count.
func (c *Context) OrderTarget(sec market.Security, target int64) (*portfolio.Order, error) {
	return c.orders.OrderTarget(sec, target, portfolio.MarketOrder(0))
}

// OrderTargetValue trades toward a target position market value.
func (c *Context) OrderTargetValue(sec market.Security, value float64) (*portfolio.Order, error) {
	return c.orders.OrderTargetValue(sec, value, portfolio.MarketOrder(0))
}

// GetPrice queries bar series from the data provider.
func (c *Context) GetPrice(secs []market.Security, q data.PriceQuery) (map[market.Security][]data.Bar, error) {
	if c.options.AvoidFutureData {
		if q.End.IsZero() || q.End.After(c.now()) {
			q.End = c.now()
		}
	}
	return c.provider.GetPrice(stdctx.Background(), secs, q)
}

// GetCurrentData returns the per-security snapshot view at the current
// time.
func (c *Context) GetCurrentData() *CurrentData { return c.current }

// GetTradeDays enumerates exchange trading days.
func (c *Context) GetTradeDays(start, end time.Time) ([]time.Time, error) {
	return c.provider.GetTradeDays(stdctx.Background(), start, end)
}

// GetIndexStocks returns an index's constituents.
func (c *Context) GetIndexStocks(index market.Security) ([]market.Security, error) {
	return c.provider.GetIndexStocks(stdctx.Background(), index)
}

// Subscribe registers push quotes for the symbols in live mode.
// Derivative symbols (futures main contracts, index futures) are
// rejected.
func (c *Context) Subscribe(secs []market.Security, kind broker.SubscribeKind) error {
	for _, sec := range secs {
		if broker.IsDerivativeSymbol(sec) {
			return fmt.Errorf("engine: cannot subscribe derivative symbol %s", sec)
		}
	}
	if c.subscribe == nil {
		return fmt.Errorf("engine: subscribe is only available in live mode")
	}
	return c.subscribe(secs, kind)
}

// Unsubscribe removes push quote registrations in live mode.
func (c *Context) Unsubscribe(secs []market.Security) error {
	if c.unsubscribe == nil {
		return fmt.Errorf("engine: unsubscribe is only available in live mode")
	}
	return c.unsubscribe(secs)
}

// SendMsg delivers a notification to the operator. The default
// transport is the log; live deployments attach their own notifier.
func (c *Context) SendMsg(msg string) {
	c.logger.Printf("[notify] %s", msg)
}

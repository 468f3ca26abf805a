// Package corporate applies cash dividends and share splits on their
// ex-dates.
//
// Design rules:
//   - Events load once per backtest window from the data provider.
//   - At each trade day's before-open, events whose ex-date arrived are
//     applied; events on halted securities defer to the next day.
//   - Per security, the split applies first and the cash dividend is
//     computed on the pre-split share count.
//   - A deferred event is dropped once the position reaches zero.
package corporate

import (
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parachutel/bullet-trade/internal/data"
	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
)

// stockDividendTaxRate is withheld from stock-type cash dividends.
// Fund-type payouts are untaxed.
const stockDividendTaxRate = 0.20

// Payout computes the after-tax cash for holding shares of an action:
// (shares / per_base) * bonus * (1 - tax), rounded to cents.
func Payout(action data.CorporateAction, shares int64) float64 {
	if shares <= 0 || action.BonusPreTax <= 0 || action.PerBase <= 0 {
		return 0
	}

	gross := decimal.NewFromInt(shares).
		Div(decimal.NewFromInt(action.PerBase)).
		Mul(decimal.NewFromFloat(action.BonusPreTax))

	if action.SecurityType == market.TypeStock {
		gross = gross.Mul(decimal.NewFromFloat(1 - stockDividendTaxRate))
	}
	return gross.Round(2).InexactFloat64()
}

// HaltCheck reports whether a security is halted on a trade day.
type HaltCheck func(sec market.Security, day time.Time) bool

// Engine holds the window's corporate actions and the deferred backlog.
type Engine struct {
	// byDate maps midnight ex-date to that day's events.
	byDate   map[time.Time][]data.CorporateAction
	deferred []data.CorporateAction
	logger   *log.Logger
}

// NewEngine indexes the window's actions by ex-date.
func NewEngine(actions []data.CorporateAction, logger *log.Logger) *Engine {
	byDate := make(map[time.Time][]data.CorporateAction)
	for _, a := range actions {
		key := market.Midnight(a.ExDate)
		byDate[key] = append(byDate[key], a)
	}
	// Stable order within a day keeps application deterministic.
	for key := range byDate {
		evs := byDate[key]
		sort.SliceStable(evs, func(i, j int) bool {
			return evs[i].Security.String() < evs[j].Security.String()
		})
		byDate[key] = evs
	}
	return &Engine{byDate: byDate, logger: logger}
}

// ApplyForDay processes the day's ex-date events plus the deferred
// backlog against held positions. Called at before-open.
func (e *Engine) ApplyForDay(day time.Time, pf *portfolio.Portfolio, halted HaltCheck) {
	d := market.Midnight(day)

	due := append([]data.CorporateAction{}, e.deferred...)
	due = append(due, e.byDate[d]...)
	e.deferred = nil

	for _, action := range due {
		pos, held := pf.Position(action.Security)
		if !held || pos.TotalAmount == 0 {
			// Position gone: the event no longer applies.
			e.logger.Printf("[corporate] dropped %s event (no position)", action.Security)
			continue
		}

		if halted != nil && halted(action.Security, d) {
			e.logger.Printf("[corporate] %s halted on %s, event deferred",
				action.Security, d.Format("2006-01-02"))
			e.deferred = append(e.deferred, action)
			continue
		}

		e.apply(action, pos, pf)
	}
}

// apply mutates the portfolio for one event: split first, then the cash
// dividend on the pre-split share count.
func (e *Engine) apply(action data.CorporateAction, pos portfolio.Position, pf *portfolio.Portfolio) {
	preSplitShares := pos.TotalAmount

	if action.ScaleFactor > 0 && action.ScaleFactor != 1 {
		pf.ApplySplit(action.Security, action.ScaleFactor)
		e.logger.Printf("[corporate] %s split x%.4f: %d -> %d shares",
			action.Security, action.ScaleFactor, preSplitShares,
			int64(float64(preSplitShares)*action.ScaleFactor+0.5))
	}

	if payout := Payout(action, preSplitShares); payout > 0 {
		pf.Deposit(payout)
		e.logger.Printf("[corporate] %s dividend: %.2f on %d shares (per %d: %.4f)",
			action.Security, payout, preSplitShares, action.PerBase, action.BonusPreTax)
	}
}

// PendingDeferred returns the number of deferred events awaiting an
// unhalted day.
func (e *Engine) PendingDeferred() int {
	return len(e.deferred)
}

// Package engine - backtest.go is the historical simulation driver.
//
// The driver iterates trade days, builds the scheduler timeline once
// per day, advances the virtual clock through the priority queue, and
// feeds bars to the strategy. Everything runs on one goroutine:
// between timepoints the portfolio and order book are a consistent
// snapshot.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parachutel/bullet-trade/internal/corporate"
	"github.com/parachutel/bullet-trade/internal/data"
	"github.com/parachutel/bullet-trade/internal/event"
	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/matching"
	"github.com/parachutel/bullet-trade/internal/portfolio"
	"github.com/parachutel/bullet-trade/internal/risk"
	"github.com/parachutel/bullet-trade/internal/scheduler"
	"github.com/parachutel/bullet-trade/internal/storage"
)

// BacktestParams bounds one simulation run.
type BacktestParams struct {
	Start       time.Time
	End         time.Time
	CapitalBase float64
	Frequency   market.Frequency
	Benchmark   market.Security
	Periods     []market.Period
	RiskLimits  risk.Limits
}

// BacktestResult is the run's outcome.
type BacktestResult struct {
	RunID   string
	Records []portfolio.DailyRecord
	Trades  []portfolio.Trade
	// FinalValue is the last mark-to-market total value.
	FinalValue float64
	// Returns is the total return since inception.
	Returns float64
}

// Backtest drives a strategy through the historical window.
type Backtest struct {
	params   BacktestParams
	provider data.Provider
	strategy Strategy
	store    storage.Store
	logger   *log.Logger

	runID   string
	pf      *portfolio.Portfolio
	quotes  *backtestQuotes
	sched   *scheduler.Scheduler
	bus     *event.Bus
	queue   *event.Queue
	checker *risk.Checker
	actions *corporate.Engine
	cal     *market.Calendar
	ctx     *Context

	mu        sync.RWMutex
	currentDt time.Time
	records   []portfolio.DailyRecord
}

// NewBacktest assembles a backtest run. store may be nil to skip record
// persistence.
func NewBacktest(params BacktestParams, provider data.Provider, strategy Strategy, store storage.Store, logger *log.Logger) *Backtest {
	if len(params.Periods) == 0 {
		params.Periods = market.DefaultPeriods()
	}
	if params.Frequency == "" {
		params.Frequency = market.FrequencyDaily
	}

	b := &Backtest{
		params:   params,
		provider: provider,
		strategy: strategy,
		store:    store,
		logger:   logger,
		runID:    uuid.NewString(),
		pf:       portfolio.New(params.CapitalBase),
		checker:  risk.NewChecker(params.RiskLimits),
	}

	b.quotes = newBacktestQuotes(provider, params.Frequency, params.Periods, b.Now)
	b.sched = scheduler.New(params.Periods, params.Frequency, logger)
	b.queue = event.NewQueue()
	b.bus = event.NewBus(b.queue, logger)

	// Bar events dispatch handle_data through the bus so subscriber
	// ordering matches the live driver's.
	b.bus.Subscribe(event.TypeBar, event.PriorityBar, func(_ context.Context, _ event.Event) error {
		return b.strategy.HandleData(b.ctx, b.ctx.current)
	})

	engine := matching.NewEngine(b.pf, b.quotes, b.checker, b.Now, logger)
	b.ctx = &Context{
		now:       b.Now,
		pf:        b.pf,
		orders:    engine,
		sched:     b.sched,
		provider:  provider,
		current:   b.quotes.currentData(),
		globals:   NewGlobals(),
		options:   &Options{},
		benchmark: params.Benchmark,
		logger:    log.New(logger.Writer(), "[strategy] ", log.LstdFlags),
	}
	*b.ctx.options = DefaultOptions()
	return b
}

// Context exposes the run's context, mainly for tests that drive the
// strategy surface directly.
func (b *Backtest) Context() *Context { return b.ctx }

// RunID identifies this run in persisted records.
func (b *Backtest) RunID() string { return b.runID }

// Now returns the current virtual time.
func (b *Backtest) Now() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.currentDt
}

func (b *Backtest) setNow(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.Before(b.currentDt) {
		// The virtual clock never moves backwards.
		return
	}
	b.currentDt = t
}

// Run executes the full simulation.
func (b *Backtest) Run(ctx context.Context) (*BacktestResult, error) {
	days, err := b.provider.GetTradeDays(ctx, b.params.Start, b.params.End)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve trade days: %w", err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("engine: no trade days in [%s, %s]",
			b.params.Start.Format("2006-01-02"), b.params.End.Format("2006-01-02"))
	}
	b.cal = market.NewCalendar(days, b.params.Periods)

	if infos, err := b.provider.GetAllSecurities(ctx); err == nil {
		b.quotes.setTypes(infos)
	}

	b.loadCorporateActions(ctx, days)

	b.setNow(market.SessionOpen(days[0], b.params.Periods))
	if err := b.strategy.Initialize(b.ctx); err != nil {
		return nil, fmt.Errorf("engine: initialize: %w", err)
	}
	if err := b.strategy.ProcessInitialize(b.ctx); err != nil {
		return nil, fmt.Errorf("engine: process_initialize: %w", err)
	}

	for _, day := range b.cal.Days(b.params.Start, b.params.End) {
		select {
		case <-ctx.Done():
			return b.result(), ctx.Err()
		default:
		}

		if err := b.runDay(ctx, day); err != nil {
			// Fatal driver errors abort the run but report the partial
			// record series.
			b.logger.Printf("[engine] FATAL on %s: %v", day.Format("2006-01-02"), err)
			return b.result(), err
		}
	}

	return b.result(), nil
}

// runDay executes one trade day end to end.
func (b *Backtest) runDay(ctx context.Context, day time.Time) error {
	b.quotes.setDay(day)
	sessionOpen := market.SessionOpen(day, b.params.Periods)
	sessionClose := market.SessionClose(day, b.params.Periods)

	// Before-open: corporate actions, T+1 unlock, risk counters, then
	// the strategy hook.
	b.setNow(sessionOpen)
	b.actions.ApplyForDay(day, b.pf, b.haltedOn)
	b.pf.UpdateCloseable()
	b.checker.ResetDay(day)
	if err := b.strategy.BeforeTradingStart(b.ctx); err != nil {
		b.logger.Printf("[engine] before_trading_start failed: %v", err)
	}

	// The day's timeline was precomputed here: tasks registered from
	// inside callbacks only appear tomorrow.
	for _, slot := range b.sched.Timeline(day, b.cal) {
		b.queue.Push(event.Event{
			Type:     event.TypeTask,
			Time:     slot.At,
			Priority: event.PriorityDefault,
			Payload:  slot,
		})
	}

	// handle_data bar events: every session minute on minute runs, the
	// open point alone on daily runs. A bar event ranks below the task
	// slot at the same timepoint, so tasks scheduled there run first.
	if b.params.Frequency == market.FrequencyMinute {
		for _, p := range b.params.Periods {
			open := p.Open.At(day)
			close := p.Close.At(day)
			for t := open; t.Before(close); t = t.Add(time.Minute) {
				b.bus.EmitNowait(event.Event{Type: event.TypeBar, Time: t, Priority: event.PriorityDefault - 1})
			}
		}
	} else {
		b.bus.EmitNowait(event.Event{Type: event.TypeBar, Time: sessionOpen, Priority: event.PriorityDefault - 1})
	}

	for {
		ev, ok := b.queue.Pop()
		if !ok {
			break
		}
		b.setNow(ev.Time)

		if slot, isSlot := ev.Payload.(scheduler.TimeSlot); isSlot {
			for _, task := range slot.Tasks {
				b.sched.Execute(ctx, task)
			}
			continue
		}
		b.bus.Emit(ctx, ev)
	}

	// Session close: mark-to-market, record, after-trading hook.
	b.setNow(sessionClose)
	b.markToMarket()

	record := portfolio.DailyRecord{
		Date:       day,
		Cash:       b.pf.Cash(),
		TotalValue: b.pf.TotalValue(),
		Returns:    b.pf.Returns(),
	}
	b.records = append(b.records, record)
	b.persistRecord(ctx, record)

	if err := b.strategy.AfterTradingEnd(b.ctx); err != nil {
		b.logger.Printf("[engine] after_trading_end failed: %v", err)
	}

	return b.pf.CheckInvariants()
}

// markToMarket sets every position's last price to the daily close.
// At the session close the reference price is the daily close.
func (b *Backtest) markToMarket() {
	for sec := range b.pf.Positions() {
		if price, ok := b.quotes.RefPrice(sec); ok {
			b.pf.MarkPrice(sec, price)
		}
	}
}

// haltedOn adapts the quote state for the corporate-action engine.
func (b *Backtest) haltedOn(sec market.Security, _ time.Time) bool {
	return b.quotes.Halted(sec)
}

// loadCorporateActions fetches the window's events once, for every
// security the provider knows. Adapter failures degrade to an empty
// event set.
func (b *Backtest) loadCorporateActions(ctx context.Context, days []time.Time) {
	var all []data.CorporateAction

	infos, err := b.provider.GetAllSecurities(ctx)
	if err != nil {
		b.logger.Printf("[engine] WARNING: securities metadata unavailable: %v — no corporate actions", err)
		b.actions = corporate.NewEngine(nil, b.logger)
		return
	}

	start, end := days[0], days[len(days)-1]
	for sec := range infos {
		actions, err := b.provider.GetSplitDividend(ctx, sec, start, end)
		if err != nil {
			b.logger.Printf("[engine] WARNING: corporate actions for %s unavailable: %v", sec, err)
			continue
		}
		all = append(all, actions...)
	}

	b.actions = corporate.NewEngine(all, b.logger)
	if len(all) > 0 {
		b.logger.Printf("[engine] loaded %d corporate actions", len(all))
	}
}

func (b *Backtest) persistRecord(ctx context.Context, rec portfolio.DailyRecord) {
	if b.store == nil {
		return
	}
	row := &storage.DailyRecordRow{
		RunID:      b.runID,
		Date:       rec.Date,
		Cash:       rec.Cash,
		TotalValue: rec.TotalValue,
		Returns:    rec.Returns,
	}
	if err := b.store.SaveDailyRecord(ctx, row); err != nil {
		b.logger.Printf("[db] failed to save daily record: %v", err)
	}
}

func (b *Backtest) result() *BacktestResult {
	return &BacktestResult{
		RunID:      b.runID,
		Records:    b.records,
		Trades:     b.pf.Trades(),
		FinalValue: b.pf.TotalValue(),
		Returns:    b.pf.Returns(),
	}
}

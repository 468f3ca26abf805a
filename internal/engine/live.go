// Package engine - live.go is the wall-clock trading driver.
//
// The live driver merges pushed quotes from the subscription adapter
// with the scheduler timeline for the current calendar day. Orders
// route to the broker adapter; the portfolio is a mirror of the
// brokerage account, seeded at startup and reconciled in the
// background. The strategy's globals persist across restarts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/parachutel/bullet-trade/internal/broker"
	"github.com/parachutel/bullet-trade/internal/data"
	"github.com/parachutel/bullet-trade/internal/event"
	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
	"github.com/parachutel/bullet-trade/internal/pricing"
	"github.com/parachutel/bullet-trade/internal/risk"
	"github.com/parachutel/bullet-trade/internal/scheduler"
	"github.com/parachutel/bullet-trade/internal/storage"
	"github.com/parachutel/bullet-trade/internal/stream"
)

// LiveParams configures the live driver.
type LiveParams struct {
	Adapter    broker.Adapter
	Router     broker.RouterConfig
	RuntimeDir string
	StreamURL  string
	// PersistInterval is the background globals-save cadence.
	PersistInterval time.Duration
	// SyncInterval is the order reconciliation cadence.
	SyncInterval time.Duration
	// SyncNotify triggers an immediate reconciliation pass, e.g. from a
	// database order-event listener.
	SyncNotify  <-chan struct{}
	MetricsAddr string
	Periods      []market.Period
	RiskLimits   risk.Limits
}

// Live drives a strategy against a brokerage in wall-clock time.
type Live struct {
	params   LiveParams
	provider data.Provider
	strategy Strategy
	store    storage.Store
	logger   *log.Logger

	adapter broker.Adapter
	router  *broker.Router
	pf      *portfolio.Portfolio
	quotes  *liveQuotes
	sched   *scheduler.Scheduler
	queue   *event.Queue
	bus     *event.Bus
	checker *risk.Checker
	globals *Globals
	ctx     *Context
	costs   pricing.CostConfig

	mu         sync.RWMutex
	exchangeDt time.Time
}

// NewLive assembles a live run.
func NewLive(params LiveParams, provider data.Provider, strategy Strategy, store storage.Store, logger *log.Logger) *Live {
	if len(params.Periods) == 0 {
		params.Periods = market.DefaultPeriods()
	}
	if params.PersistInterval <= 0 {
		params.PersistInterval = 30 * time.Second
	}
	if params.SyncInterval <= 0 {
		params.SyncInterval = 10 * time.Second
	}

	l := &Live{
		params:   params,
		provider: provider,
		strategy: strategy,
		store:    store,
		logger:   logger,
		adapter:  params.Adapter,
		router:   broker.NewRouter(params.Adapter, params.Router, logger),
		quotes:   newLiveQuotes(),
		checker:  risk.NewChecker(params.RiskLimits),
		globals:  NewGlobals(),
		costs:    pricing.DefaultCosts(),
	}

	// Live always runs at minute granularity for scheduling purposes.
	l.sched = scheduler.New(params.Periods, market.FrequencyMinute, logger)
	l.queue = event.NewQueue()
	l.bus = event.NewBus(l.queue, logger)
	return l
}

// Now returns the exchange clock: the latest provider timestamp, or the
// wall clock before any quote arrived.
func (l *Live) Now() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.exchangeDt.IsZero() {
		return time.Now().In(market.CST)
	}
	return l.exchangeDt
}

func (l *Live) setExchangeDt(t time.Time) {
	l.mu.Lock()
	if t.After(l.exchangeDt) {
		l.exchangeDt = t
	}
	l.mu.Unlock()

	delay := time.Since(t)
	mtxClockDelay.Set(delay.Seconds())
	if delay > 3*time.Second {
		l.logger.Printf("[live] delay=%.1fs behind exchange clock", delay.Seconds())
	}
}

// UpdateRiskLimits swaps the risk thresholds at runtime. Used by the
// config hot-reload watcher.
func (l *Live) UpdateRiskLimits(limits risk.Limits) {
	l.checker.UpdateLimits(limits)
	l.logger.Printf("[live] risk limits updated")
}

// globalsPath is the persisted strategy state file.
func (l *Live) globalsPath() string {
	return filepath.Join(l.params.RuntimeDir, GlobalsFileName)
}

// persistGlobals saves `g`, logging failures. Called after callbacks
// and on the background interval.
func (l *Live) persistGlobals() {
	if err := l.globals.SaveTo(l.globalsPath()); err != nil {
		l.logger.Printf("[live] WARNING: persist globals failed: %v", err)
	}
}

// Run connects the adapter and drives until the context is cancelled.
func (l *Live) Run(ctx context.Context) error {
	if err := l.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("engine: broker connect: %w", err)
	}
	defer l.adapter.Disconnect(context.Background())

	// Rehydrate persisted strategy state before any callback runs.
	if err := l.globals.LoadFrom(l.globalsPath()); err != nil {
		l.logger.Printf("[live] WARNING: globals not restored: %v", err)
	} else if l.globals.Len() > 0 {
		l.logger.Printf("[live] restored %d persisted globals", l.globals.Len())
	}

	if err := l.seedPortfolio(ctx); err != nil {
		return err
	}

	if infos, err := l.provider.GetAllSecurities(ctx); err == nil {
		l.quotes.setTypes(infos)
	}

	l.ctx = &Context{
		now:      l.Now,
		pf:       l.pf,
		orders:   &liveOrders{l: l},
		sched:    l.sched,
		provider: l.provider,
		current:  l.quotes.currentData(),
		globals:  l.globals,
		options:  &Options{},
		logger:   log.New(l.logger.Writer(), "[strategy] ", log.LstdFlags),
		subscribe: func(secs []market.Security, kind broker.SubscribeKind) error {
			return l.adapter.Subscribe(ctx, secs, kind)
		},
		unsubscribe: func(secs []market.Security) error {
			return l.adapter.Unsubscribe(ctx, secs)
		},
	}
	*l.ctx.options = DefaultOptions()

	// Pushed quotes surface into the event bus; the subscriber updates
	// the quote state and the portfolio mark.
	l.bus.Subscribe(event.TypeQuote, event.PriorityAccountSync, func(_ context.Context, ev event.Event) error {
		q := ev.Payload.(quoteUpdate)
		l.quotes.update(q.sec, q.snap)
		l.setExchangeDt(ev.Time)
		l.pf.MarkPrice(q.sec, q.snap.LastPrice)
		mtxTotalValue.Set(l.pf.TotalValue())
		return nil
	})

	if err := l.runCallback("initialize", func() error { return l.strategy.Initialize(l.ctx) }); err != nil {
		return fmt.Errorf("engine: initialize: %w", err)
	}
	if err := l.runCallback("process_initialize", func() error { return l.strategy.ProcessInitialize(l.ctx) }); err != nil {
		return fmt.Errorf("engine: process_initialize: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if l.params.StreamURL != "" {
		client := stream.NewClient(l.params.StreamURL, l.onQuote, l.logger)
		g.Go(func() error { return client.Run(gctx) })
	}

	g.Go(func() error { return l.persistLoop(gctx) })
	g.Go(func() error { return l.reconcileLoop(gctx) })

	if l.params.MetricsAddr != "" {
		g.Go(func() error { return l.serveMetrics(gctx) })
	}

	g.Go(func() error { return l.scheduleLoop(gctx) })

	err := g.Wait()
	l.persistGlobals()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// seedPortfolio mirrors the brokerage account into the local portfolio.
func (l *Live) seedPortfolio(ctx context.Context) error {
	info, err := l.adapter.GetAccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("engine: account info: %w", err)
	}
	positions, err := l.adapter.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("engine: positions: %w", err)
	}

	l.pf = portfolio.New(info.TotalAssets)
	// Replay holdings as opening fills, then restore the cash balance.
	for _, p := range positions {
		if err := l.pf.ApplyBuy(p.Security, p.TotalAmount, p.AvgCost, pricing.Fees{}, l.Now(), "seed"); err != nil {
			l.logger.Printf("[live] WARNING: could not mirror position %s: %v", p.Security, err)
			continue
		}
		l.pf.MarkPrice(p.Security, p.LastPrice)
	}
	l.pf.UpdateCloseable()
	l.pf.Deposit(info.AvailableCash - l.pf.Cash())

	l.logger.Printf("[live] mirrored account: cash=%.2f positions=%d total=%.2f",
		l.pf.Cash(), len(positions), l.pf.TotalValue())
	return nil
}

// quoteUpdate is the bus payload of one pushed quote.
type quoteUpdate struct {
	sec  market.Security
	snap data.Snapshot
}

// onQuote surfaces one pushed quote into the event bus.
func (l *Live) onQuote(sec market.Security, snap data.Snapshot, at time.Time) {
	l.bus.Emit(context.Background(), event.Event{
		Type:     event.TypeQuote,
		Time:     at,
		Priority: event.PriorityAccountSync,
		Payload:  quoteUpdate{sec: sec, snap: snap},
	})
}

// persistLoop saves globals on the background interval.
func (l *Live) persistLoop(ctx context.Context) error {
	ticker := time.NewTicker(l.params.PersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.persistGlobals()
		}
	}
}

// reconcileLoop discovers terminal states of orders whose status poll
// timed out, via sync_orders. It runs on a timer and on demand when the
// database listener reports an order event.
func (l *Live) reconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(l.params.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-l.params.SyncNotify:
		}
		l.reconcileOnce(ctx)
	}
}

func (l *Live) reconcileOnce(ctx context.Context) {
	open := l.pf.OpenOrders()
	if len(open) == 0 {
		return
	}
	statuses, err := l.adapter.SyncOrders(ctx)
	if err != nil {
		l.logger.Printf("[live] WARNING: sync_orders failed: %v", err)
		return
	}
	byID := make(map[string]broker.OrderStatus, len(statuses))
	for _, st := range statuses {
		byID[st.OrderID] = st
	}
	for _, o := range open {
		st, ok := byID[o.ExternalID]
		if !ok || !st.Status.Terminal() {
			continue
		}
		l.logger.Printf("[live] reconciled order %s: %s", o.ExternalID, st.Status)
		applyExternalFill(l.pf, o, st, l.quotes, l.costs, l.Now())
	}
}

func (l *Live) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: l.params.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	l.logger.Printf("[live] metrics on %s/metrics", l.params.MetricsAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

// scheduleLoop walks the current day's timeline in wall-clock time.
func (l *Live) scheduleLoop(ctx context.Context) error {
	for {
		now := time.Now().In(market.CST)
		day := market.Midnight(now)

		days, err := l.provider.GetTradeDays(ctx, day, day.AddDate(0, 1, 0))
		if err != nil || len(days) == 0 {
			l.logger.Printf("[live] no trade-day data, retrying in 1m")
			if err := sleepCtx(ctx, time.Minute); err != nil {
				return err
			}
			continue
		}
		cal := market.NewCalendar(days, l.params.Periods)

		if !cal.IsTradingDay(day) {
			next := cal.NextTradingDay(day)
			if next.IsZero() {
				if err := sleepCtx(ctx, time.Hour); err != nil {
					return err
				}
				continue
			}
			l.logger.Printf("[live] %s is not a trading day; next is %s",
				day.Format("2006-01-02"), next.Format("2006-01-02"))
			if err := sleepCtx(ctx, time.Until(market.SessionOpen(next, l.params.Periods).Add(-35*time.Minute))); err != nil {
				return err
			}
			continue
		}

		if err := l.runTradeDay(ctx, cal, day); err != nil {
			return err
		}

		// Park until the next day's pre-open.
		next := cal.NextTradingDay(day)
		if next.IsZero() {
			next = day.AddDate(0, 0, 1)
		}
		wait := time.Until(market.SessionOpen(next, l.params.Periods).Add(-35 * time.Minute))
		if wait < time.Minute {
			wait = time.Minute
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// runTradeDay executes before-open, the timeline, and after-close for
// one live day.
func (l *Live) runTradeDay(ctx context.Context, cal *market.Calendar, day time.Time) error {
	sessionOpen := market.SessionOpen(day, l.params.Periods)
	sessionClose := market.SessionClose(day, l.params.Periods)

	// Before-open.
	if time.Now().In(market.CST).Before(sessionOpen) {
		if err := sleepCtx(ctx, time.Until(sessionOpen.Add(-30*time.Minute))); err != nil {
			return err
		}
	}
	l.pf.UpdateCloseable()
	if sim, ok := l.adapter.(*broker.Simulator); ok {
		sim.SettleCloseable()
	}
	l.checker.ResetDay(day)
	l.runCallbackLogged("before_trading_start", func() error { return l.strategy.BeforeTradingStart(l.ctx) })

	// Timeline precomputed once for the day.
	slots := l.sched.Timeline(day, cal)
	for _, slot := range slots {
		if err := sleepCtx(ctx, time.Until(slot.At)); err != nil {
			return err
		}
		for _, task := range slot.Tasks {
			task := task
			if task.Overlap == scheduler.OverlapConcurrent {
				go func() {
					l.sched.Execute(ctx, task)
					l.persistGlobals()
				}()
				continue
			}
			l.sched.Execute(ctx, task)
			l.persistGlobals()
		}
	}

	// After-close.
	if err := sleepCtx(ctx, time.Until(sessionClose)); err != nil {
		return err
	}
	mtxTotalValue.Set(l.pf.TotalValue())
	l.recordDay(ctx, day)
	l.runCallbackLogged("after_trading_end", func() error { return l.strategy.AfterTradingEnd(l.ctx) })
	return nil
}

func (l *Live) recordDay(ctx context.Context, day time.Time) {
	if l.store == nil {
		return
	}
	row := &storage.DailyRecordRow{
		RunID:      "live",
		Date:       day,
		Cash:       l.pf.Cash(),
		TotalValue: l.pf.TotalValue(),
		Returns:    l.pf.Returns(),
	}
	if err := l.store.SaveDailyRecord(ctx, row); err != nil {
		l.logger.Printf("[db] failed to save daily record: %v", err)
	}
}

// runCallback invokes one strategy callback and persists globals after
// completion.
func (l *Live) runCallback(name string, fn func() error) error {
	err := fn()
	l.persistGlobals()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (l *Live) runCallbackLogged(name string, fn func() error) {
	if err := l.runCallback(name, fn); err != nil {
		l.logger.Printf("[live] %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		// Already due; still honor a cancelled context.
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// applyExternalFill settles a terminal external order status into the
// portfolio mirror.
func applyExternalFill(pf *portfolio.Portfolio, o *portfolio.Order, st broker.OrderStatus, quotes *liveQuotes, costs pricing.CostConfig, at time.Time) {
	o.Status = st.Status
	o.FilledAmount = st.FilledAmount
	o.AvgFillPrice = st.AvgFillPrice
	if st.Status != portfolio.StatusFilled && st.Status != portfolio.StatusPartial {
		return
	}

	typ := quotes.TypeOf(o.Security)
	fees := pricing.FeesFor(costs, typ, o.Side, st.FilledAmount, st.AvgFillPrice)
	o.Commission = fees.Commission
	o.Tax = fees.Tax

	var err error
	if o.Side == pricing.Buy {
		err = pf.ApplyBuy(o.Security, st.FilledAmount, st.AvgFillPrice, fees, at, o.ID)
	} else {
		err = pf.ApplySell(o.Security, st.FilledAmount, st.AvgFillPrice, fees, at, o.ID)
	}
	if err == nil {
		mtxFills.WithLabelValues(o.Side.String()).Inc()
	}
}

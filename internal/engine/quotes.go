// Package engine - quotes.go implements the per-mode quote state that
// backs both order matching and the strategy's current-data view.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/parachutel/bullet-trade/internal/data"
	"github.com/parachutel/bullet-trade/internal/market"
)

// CurrentData is the snapshot view strategies read through
// get_current_data. It is distinct from bar series: one quote state per
// security, valid at the current virtual time.
type CurrentData struct {
	source func(sec market.Security) (data.Snapshot, bool)
}

// Get returns the current snapshot for sec.
func (c *CurrentData) Get(sec market.Security) (data.Snapshot, bool) {
	return c.source(sec)
}

// backtestQuotes derives reference prices from bar series as the
// virtual clock advances.
//
// Reference price selection for a timepoint t:
//   - before the session's first minute-bar close: the day's open
//   - at and after: the latest minute bar's close
//   - after session close: the daily close
type backtestQuotes struct {
	mu       sync.Mutex
	provider data.Provider
	freq     market.Frequency
	periods  []market.Period

	day   time.Time
	now   func() time.Time
	types map[market.Security]market.SecurityType

	daily  map[market.Security][]data.Bar
	minute map[market.Security][]data.Bar // current day only
}

func newBacktestQuotes(provider data.Provider, freq market.Frequency, periods []market.Period, now func() time.Time) *backtestQuotes {
	return &backtestQuotes{
		provider: provider,
		freq:     freq,
		periods:  periods,
		now:      now,
		types:    make(map[market.Security]market.SecurityType),
		daily:    make(map[market.Security][]data.Bar),
		minute:   make(map[market.Security][]data.Bar),
	}
}

// setDay rolls the quote state onto a new trade day, dropping the
// previous day's minute window.
func (q *backtestQuotes) setDay(day time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.day = market.Midnight(day)
	q.minute = make(map[market.Security][]data.Bar)
}

func (q *backtestQuotes) setTypes(infos map[market.Security]data.SecurityInfo) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for sec, info := range infos {
		q.types[sec] = info.Type
	}
}

// dailyBars loads and caches the security's daily series.
func (q *backtestQuotes) dailyBars(sec market.Security) []data.Bar {
	if bars, ok := q.daily[sec]; ok {
		return bars
	}
	res, err := q.provider.GetPrice(context.Background(), []market.Security{sec}, data.PriceQuery{
		Frequency: market.FrequencyDaily,
	})
	if err != nil {
		q.daily[sec] = nil
		return nil
	}
	q.daily[sec] = res[sec]
	return res[sec]
}

// minuteBars loads and caches the security's minute bars for the
// current day. Only one session window is held at a time.
func (q *backtestQuotes) minuteBars(sec market.Security) []data.Bar {
	if bars, ok := q.minute[sec]; ok {
		return bars
	}
	res, err := q.provider.GetPrice(context.Background(), []market.Security{sec}, data.PriceQuery{
		Start:     market.SessionOpen(q.day, q.periods),
		End:       market.SessionClose(q.day, q.periods),
		Frequency: market.FrequencyMinute,
	})
	if err != nil {
		q.minute[sec] = nil
		return nil
	}
	q.minute[sec] = res[sec]
	return res[sec]
}

// RefPrice implements matching.QuoteSource.
func (q *backtestQuotes) RefPrice(sec market.Security) (float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	dayBar, ok := data.DayBar(q.dailyBars(sec), q.day)
	if !ok {
		return 0, false
	}

	now := q.now()
	sessionClose := market.SessionClose(q.day, q.periods)

	// Post-close scheduling points match at the daily close.
	if !now.Before(sessionClose) {
		return dayBar.Close, true
	}

	if q.freq == market.FrequencyMinute {
		// The latest minute bar whose close is at or before now; before
		// the first minute-bar close the day's open stands in.
		var last *data.Bar
		for i := range q.minuteBars(sec) {
			b := &q.minute[sec][i]
			if b.Time.Add(time.Minute).After(now) {
				break
			}
			last = b
		}
		if last != nil {
			return last.Close, true
		}
	}
	return dayBar.Open, true
}

// Halted implements matching.QuoteSource: zero volume or a paused flag
// on the day's bar; a missing bar counts as halted.
func (q *backtestQuotes) Halted(sec market.Security) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return data.HaltedOn(q.dailyBars(sec), q.day)
}

// TypeOf implements matching.QuoteSource.
func (q *backtestQuotes) TypeOf(sec market.Security) market.SecurityType {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.types[sec]; ok {
		return t
	}
	return market.TypeStock
}

// currentData exposes the quote state as the strategy-facing view.
func (q *backtestQuotes) currentData() *CurrentData {
	return &CurrentData{source: func(sec market.Security) (data.Snapshot, bool) {
		price, ok := q.RefPrice(sec)
		if !ok {
			return data.Snapshot{}, false
		}
		return data.Snapshot{LastPrice: price, Paused: q.Halted(sec)}, true
	}}
}

// liveQuotes mirrors pushed snapshots for live matching and current
// data.
type liveQuotes struct {
	mu    sync.RWMutex
	snaps map[market.Security]data.Snapshot
	types map[market.Security]market.SecurityType
}

func newLiveQuotes() *liveQuotes {
	return &liveQuotes{
		snaps: make(map[market.Security]data.Snapshot),
		types: make(map[market.Security]market.SecurityType),
	}
}

func (q *liveQuotes) update(sec market.Security, snap data.Snapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.snaps[sec] = snap
}

func (q *liveQuotes) setTypes(infos map[market.Security]data.SecurityInfo) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for sec, info := range infos {
		q.types[sec] = info.Type
	}
}

func (q *liveQuotes) RefPrice(sec market.Security) (float64, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	snap, ok := q.snaps[sec]
	if !ok || snap.LastPrice <= 0 {
		return 0, false
	}
	return snap.LastPrice, true
}

func (q *liveQuotes) Halted(sec market.Security) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	snap, ok := q.snaps[sec]
	if !ok {
		// No quote state at all: conservatively halted.
		return true
	}
	return snap.Paused
}

func (q *liveQuotes) TypeOf(sec market.Security) market.SecurityType {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if t, ok := q.types[sec]; ok {
		return t
	}
	return market.TypeStock
}

func (q *liveQuotes) currentData() *CurrentData {
	return &CurrentData{source: func(sec market.Security) (data.Snapshot, bool) {
		q.mu.RLock()
		defer q.mu.RUnlock()
		snap, ok := q.snaps[sec]
		return snap, ok
	}}
}

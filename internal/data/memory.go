// Package data - memory.go provides the in-memory provider used by
// backtests fed from preloaded series and by tests.
package data

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
)

// MemoryProvider serves preloaded bar series, trade days, securities
// metadata, and corporate actions. Zero-value maps are lazily created.
type MemoryProvider struct {
	TradeDays  []time.Time
	Daily      map[market.Security][]Bar
	Minute     map[market.Security][]Bar
	Securities map[market.Security]SecurityInfo
	Indexes    map[market.Security][]market.Security
	Actions    map[market.Security][]CorporateAction
	Snapshots  map[market.Security]Snapshot
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		Daily:      make(map[market.Security][]Bar),
		Minute:     make(map[market.Security][]Bar),
		Securities: make(map[market.Security]SecurityInfo),
		Indexes:    make(map[market.Security][]market.Security),
		Actions:    make(map[market.Security][]CorporateAction),
		Snapshots:  make(map[market.Security]Snapshot),
	}
}

// AddDailyBars loads a daily series for a security, sorted by time.
func (m *MemoryProvider) AddDailyBars(sec market.Security, bars []Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	m.Daily[sec] = bars
}

// AddMinuteBars loads a minute series for a security, sorted by time.
func (m *MemoryProvider) AddMinuteBars(sec market.Security, bars []Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	m.Minute[sec] = bars
}

func (m *MemoryProvider) GetPrice(_ context.Context, secs []market.Security, q PriceQuery) (map[market.Security][]Bar, error) {
	src := m.Daily
	if q.Frequency == market.FrequencyMinute {
		src = m.Minute
	}

	out := make(map[market.Security][]Bar, len(secs))
	for _, sec := range secs {
		series := src[sec]
		var sel []Bar
		for _, b := range series {
			if !q.Start.IsZero() && b.Time.Before(q.Start) {
				continue
			}
			if !q.End.IsZero() && b.Time.After(q.End) {
				continue
			}
			sel = append(sel, b)
		}
		if q.Count > 0 && len(sel) > q.Count {
			sel = sel[len(sel)-q.Count:]
		}
		out[sec] = sel
	}
	return out, nil
}

func (m *MemoryProvider) GetTradeDays(_ context.Context, start, end time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, d := range m.TradeDays {
		if !start.IsZero() && d.Before(market.Midnight(start)) {
			continue
		}
		if !end.IsZero() && d.After(market.Midnight(end)) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *MemoryProvider) GetAllSecurities(_ context.Context) (map[market.Security]SecurityInfo, error) {
	out := make(map[market.Security]SecurityInfo, len(m.Securities))
	for k, v := range m.Securities {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryProvider) GetIndexStocks(_ context.Context, index market.Security) ([]market.Security, error) {
	stocks, ok := m.Indexes[index]
	if !ok {
		return nil, fmt.Errorf("data: unknown index %s", index)
	}
	return stocks, nil
}

func (m *MemoryProvider) GetSplitDividend(_ context.Context, sec market.Security, start, end time.Time) ([]CorporateAction, error) {
	var out []CorporateAction
	for _, a := range m.Actions[sec] {
		if a.ExDate.Before(market.Midnight(start)) || a.ExDate.After(market.Midnight(end)) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *MemoryProvider) GetLiveCurrent(_ context.Context, sec market.Security) (Snapshot, error) {
	snap, ok := m.Snapshots[sec]
	if !ok {
		return Snapshot{}, fmt.Errorf("data: no snapshot for %s", sec)
	}
	return snap, nil
}

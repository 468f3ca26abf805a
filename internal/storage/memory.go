// Package storage - memory.go provides the in-memory store used when no
// database is configured and by tests.
package storage

import (
	"context"
	"sync"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	daily  []DailyRecordRow
	trades []TradeRow
	logs   []TradeLogRow
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) SaveDailyRecord(_ context.Context, rec *DailyRecordRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.daily {
		if m.daily[i].RunID == rec.RunID && m.daily[i].Date.Equal(rec.Date) {
			rec.ID = m.daily[i].ID
			m.daily[i] = *rec
			return nil
		}
	}
	rec.ID = m.id()
	m.daily = append(m.daily, *rec)
	return nil
}

func (m *MemoryStore) GetDailyRecords(_ context.Context, runID string) ([]DailyRecordRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []DailyRecordRow
	for _, r := range m.daily {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveTrade(_ context.Context, trade *TradeRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade.ID = m.id()
	m.trades = append(m.trades, *trade)
	return nil
}

func (m *MemoryStore) GetTrades(_ context.Context, runID string) ([]TradeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []TradeRow
	for _, t := range m.trades {
		if t.RunID == runID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveTradeLog(_ context.Context, entry *TradeLogRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.id()
	m.logs = append(m.logs, *entry)
	return nil
}

// TradeLogs returns the accumulated log rows (test helper).
func (m *MemoryStore) TradeLogs() []TradeLogRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TradeLogRow, len(m.logs))
	copy(out, m.logs)
	return out
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() {}

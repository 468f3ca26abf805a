// Package data - csv.go loads daily bar series from per-security CSV
// files, the interchange format used to feed offline backtests.
package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
)

// LoadCSVBars reads daily bars from a CSV file with the header
// date,open,high,low,close,volume[,paused]. Rows that fail to parse are
// skipped.
func LoadCSVBars(path string) []Bar {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil
	}

	var bars []Bar
	for i, record := range records {
		if i == 0 {
			continue // header
		}
		if len(record) < 6 {
			continue
		}

		date, err := time.ParseInLocation("2006-01-02", record[0], market.CST)
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(record[1], 64)
		high, _ := strconv.ParseFloat(record[2], 64)
		low, _ := strconv.ParseFloat(record[3], 64)
		closeP, _ := strconv.ParseFloat(record[4], 64)
		volume, _ := strconv.ParseInt(record[5], 10, 64)

		paused := -1
		if len(record) >= 7 {
			if p, err := strconv.Atoi(record[6]); err == nil {
				paused = p
			}
		}

		bars = append(bars, Bar{
			Time: date, Open: open, High: high, Low: low, Close: closeP,
			Volume: volume, Paused: paused,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars
}

// NewCSVProvider builds a MemoryProvider from a directory of
// `<code>.<exchange>.csv` files. Trade days are the union of all bar
// dates.
func NewCSVProvider(dir string, securities []market.Security) (*MemoryProvider, error) {
	m := NewMemoryProvider()
	daySet := make(map[time.Time]struct{})

	for _, sec := range securities {
		path := filepath.Join(dir, sec.String()+".csv")
		bars := LoadCSVBars(path)
		if len(bars) == 0 {
			return nil, fmt.Errorf("data: no bars loaded from %s", path)
		}
		m.AddDailyBars(sec, bars)
		for _, b := range bars {
			daySet[market.Midnight(b.Time)] = struct{}{}
		}
	}

	days := make([]time.Time, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	m.TradeDays = days
	return m, nil
}

// Package market handles exchange state awareness.
//
// Design rules:
//   - The runtime must know whether a date is a trading day.
//   - The runtime must know whether a timestamp falls inside a session.
//   - Do not rely on naive time checks; use exchange calendar data.
//   - Session periods are configuration, not constants.
//   - One central Calendar shared by backtest and live drivers.
package market

import (
	"fmt"
	"sort"
	"time"
)

// CST is the China Standard Time location used for all exchange timestamps.
var CST *time.Location

func init() {
	var err error
	CST, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(fmt.Sprintf("market: failed to load CST timezone: %v", err))
	}
}

// TimeOfDay is a wall-clock time within a trading day.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// At anchors the time of day onto a specific date in CST.
func (t TimeOfDay) At(day time.Time) time.Time {
	d := day.In(CST)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, CST)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Period is one continuous trading session within a day.
type Period struct {
	Open  TimeOfDay
	Close TimeOfDay
}

// DefaultPeriods are the standard A-share sessions:
// 09:30–11:30 and 13:00–15:00.
func DefaultPeriods() []Period {
	return []Period{
		{Open: TimeOfDay{Hour: 9, Minute: 30}, Close: TimeOfDay{Hour: 11, Minute: 30}},
		{Open: TimeOfDay{Hour: 13}, Close: TimeOfDay{Hour: 15}},
	}
}

// SessionOpen returns the open of the first session of the day.
func SessionOpen(day time.Time, periods []Period) time.Time {
	return periods[0].Open.At(day)
}

// SessionClose returns the close of the last session of the day.
func SessionClose(day time.Time, periods []Period) time.Time {
	return periods[len(periods)-1].Close.At(day)
}

// IsInSession reports whether t lies inside any session of its day.
// Session intervals are half-open: [open, close).
func IsInSession(t time.Time, periods []Period) bool {
	for _, p := range periods {
		open := p.Open.At(t)
		close := p.Close.At(t)
		if !t.Before(open) && t.Before(close) {
			return true
		}
	}
	return false
}

// Calendar provides trading-day enumeration for an exchange.
// It is built from an explicit, provider-supplied list of trading days
// so that holidays never have to be inferred.
type Calendar struct {
	days    []time.Time // sorted, midnight CST
	index   map[string]int
	periods []Period
}

// NewCalendar creates a Calendar from a list of trading days.
// Days are normalized to midnight CST, sorted, and de-duplicated.
func NewCalendar(days []time.Time, periods []Period) *Calendar {
	if len(periods) == 0 {
		periods = DefaultPeriods()
	}

	seen := make(map[string]struct{}, len(days))
	norm := make([]time.Time, 0, len(days))
	for _, d := range days {
		day := Midnight(d)
		key := day.Format("2006-01-02")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		norm = append(norm, day)
	}
	sort.Slice(norm, func(i, j int) bool { return norm[i].Before(norm[j]) })

	index := make(map[string]int, len(norm))
	for i, d := range norm {
		index[d.Format("2006-01-02")] = i
	}

	return &Calendar{days: norm, index: index, periods: periods}
}

// Midnight normalizes a timestamp to midnight CST of its calendar date.
func Midnight(t time.Time) time.Time {
	d := t.In(CST)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, CST)
}

// Periods returns the session periods this calendar was configured with.
func (c *Calendar) Periods() []Period {
	return c.periods
}

// IsTradingDay reports whether the given date is an exchange trading day.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	_, ok := c.index[Midnight(date).Format("2006-01-02")]
	return ok
}

// Days returns all trading days in [start, end], inclusive.
func (c *Calendar) Days(start, end time.Time) []time.Time {
	from := Midnight(start)
	to := Midnight(end)

	var out []time.Time
	for _, d := range c.days {
		if d.Before(from) {
			continue
		}
		if d.After(to) {
			break
		}
		out = append(out, d)
	}
	return out
}

// NextTradingDay returns the first trading day strictly after date.
// Returns a zero time when the calendar has no later day.
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	day := Midnight(date)
	i := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(day) })
	if i == len(c.days) {
		return time.Time{}
	}
	return c.days[i]
}

// PreviousTradingDay returns the last trading day strictly before date.
// Returns a zero time when the calendar has no earlier day.
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	day := Midnight(date)
	i := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(day) })
	if i == 0 {
		return time.Time{}
	}
	return c.days[i-1]
}

// IsMarketOpen reports whether the exchange is in a trading session at now.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	t := now.In(CST)
	if !c.IsTradingDay(t) {
		return false
	}
	return IsInSession(t, c.periods)
}

// MonthFirstFireDay returns the first trading day d in the month of `day`
// with d.Day() >= monthday, or a zero time when the month has none.
// Used by the scheduler's monthly rollover rule.
func (c *Calendar) MonthFirstFireDay(day time.Time, monthday int) time.Time {
	d := Midnight(day)
	for _, td := range c.days {
		if td.Year() != d.Year() || td.Month() != d.Month() {
			continue
		}
		if td.Day() >= monthday {
			return td
		}
	}
	return time.Time{}
}

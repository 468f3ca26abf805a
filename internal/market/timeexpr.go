// Package market - timeexpr.go parses symbolic time expressions.
//
// Accepted forms:
//
//	open            close
//	open-30m        close+30s       (offsets in s, m, or h)
//	14:50           09:31:30        (explicit wall-clock times)
//	every_minute    every_bar
//
// Parsing is pure: an Expression carries no state and resolving it for a
// trade day yields an ordered, duplicate-free list of datetimes. Offsets
// may land outside a session; they are still valid scheduling points.
package market

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeExpression is returned for any input the grammar rejects.
var ErrInvalidTimeExpression = errors.New("market: invalid time expression")

// Frequency is the driver's declared bar frequency.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyMinute Frequency = "minute"
)

// Expression resolves to concrete datetimes for a given trade day.
type Expression interface {
	// Resolve returns the expression's timepoints on the trade day, in
	// ascending order without duplicates. freq only affects every_bar.
	Resolve(day time.Time, periods []Period, freq Frequency) []time.Time

	// String renders the canonical source form of the expression.
	String() string
}

// anchor names the session edge an offset expression is relative to.
type anchor int

const (
	anchorOpen anchor = iota
	anchorClose
)

// offsetExpr is open±d or close±d. A zero delta is plain "open"/"close".
type offsetExpr struct {
	anchor anchor
	delta  time.Duration
}

func (e offsetExpr) Resolve(day time.Time, periods []Period, _ Frequency) []time.Time {
	var base time.Time
	if e.anchor == anchorOpen {
		base = SessionOpen(day, periods)
	} else {
		base = SessionClose(day, periods)
	}
	return []time.Time{base.Add(e.delta)}
}

func (e offsetExpr) String() string {
	name := "open"
	if e.anchor == anchorClose {
		name = "close"
	}
	if e.delta == 0 {
		return name
	}
	sign := "+"
	d := e.delta
	if d < 0 {
		sign = "-"
		d = -d
	}
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%s%s%dh", name, sign, d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%s%s%dm", name, sign, d/time.Minute)
	default:
		return fmt.Sprintf("%s%s%ds", name, sign, d/time.Second)
	}
}

// clockExpr is an explicit HH:MM[:SS] time.
type clockExpr struct {
	tod TimeOfDay
}

func (e clockExpr) Resolve(day time.Time, _ []Period, _ Frequency) []time.Time {
	return []time.Time{e.tod.At(day)}
}

func (e clockExpr) String() string {
	if e.tod.Second == 0 {
		return fmt.Sprintf("%02d:%02d", e.tod.Hour, e.tod.Minute)
	}
	return e.tod.String()
}

// everyMinuteExpr enumerates every minute whose start lies within a
// session, excluding the close minute of each session.
type everyMinuteExpr struct{}

func (everyMinuteExpr) Resolve(day time.Time, periods []Period, _ Frequency) []time.Time {
	var out []time.Time
	for _, p := range periods {
		open := p.Open.At(day)
		close := p.Close.At(day)
		for t := open; t.Before(close); t = t.Add(time.Minute) {
			out = append(out, t)
		}
	}
	return dedupeSorted(out)
}

func (everyMinuteExpr) String() string { return "every_minute" }

// everyBarExpr adapts to the driver's frequency: every minute when minute
// bars are used, the session open when daily bars are used. Frequency is
// read at schedule-generation time, not per event.
type everyBarExpr struct{}

func (everyBarExpr) Resolve(day time.Time, periods []Period, freq Frequency) []time.Time {
	if freq == FrequencyDaily {
		return []time.Time{SessionOpen(day, periods)}
	}
	return everyMinuteExpr{}.Resolve(day, periods, freq)
}

func (everyBarExpr) String() string { return "every_bar" }

// ParseTimeExpression parses one symbolic time expression.
func ParseTimeExpression(s string) (Expression, error) {
	expr := strings.TrimSpace(s)
	switch expr {
	case "":
		return nil, fmt.Errorf("%w: empty", ErrInvalidTimeExpression)
	case "every_minute":
		return everyMinuteExpr{}, nil
	case "every_bar":
		return everyBarExpr{}, nil
	case "open":
		return offsetExpr{anchor: anchorOpen}, nil
	case "close":
		return offsetExpr{anchor: anchorClose}, nil
	}

	if e, ok := parseOffset(expr); ok {
		return e, nil
	}
	if e, ok := parseClock(expr); ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidTimeExpression, s)
}

// parseOffset handles open±<n>[smh] and close±<n>[smh].
func parseOffset(s string) (Expression, bool) {
	var a anchor
	var rest string
	switch {
	case strings.HasPrefix(s, "open"):
		a, rest = anchorOpen, s[len("open"):]
	case strings.HasPrefix(s, "close"):
		a, rest = anchorClose, s[len("close"):]
	default:
		return nil, false
	}

	if len(rest) < 3 {
		return nil, false
	}
	sign := time.Duration(1)
	switch rest[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, false
	}

	unit := rest[len(rest)-1]
	n, err := strconv.Atoi(rest[1 : len(rest)-1])
	if err != nil || n < 0 {
		return nil, false
	}

	var d time.Duration
	switch unit {
	case 's':
		d = time.Duration(n) * time.Second
	case 'm':
		d = time.Duration(n) * time.Minute
	case 'h':
		d = time.Duration(n) * time.Hour
	default:
		return nil, false
	}

	return offsetExpr{anchor: a, delta: sign * d}, true
}

// parseClock handles HH:MM and HH:MM:SS.
func parseClock(s string) (Expression, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, false
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return nil, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		nums[i] = n
	}

	tod := TimeOfDay{Hour: nums[0], Minute: nums[1]}
	if len(nums) == 3 {
		tod.Second = nums[2]
	}
	if tod.Hour > 23 || tod.Minute > 59 || tod.Second > 59 {
		return nil, false
	}
	return clockExpr{tod: tod}, true
}

func dedupeSorted(ts []time.Time) []time.Time {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	out := ts[:0]
	for i, t := range ts {
		if i > 0 && t.Equal(ts[i-1]) {
			continue
		}
		out = append(out, t)
	}
	return out
}

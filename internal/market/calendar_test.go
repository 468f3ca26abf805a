package market

import (
	"testing"
	"time"
)

// makeTestCalendar covers the first half of June 2024 (15th/16th are a
// weekend) plus a holiday gap.
func makeTestCalendar() *Calendar {
	days := []time.Time{
		time.Date(2024, 6, 12, 0, 0, 0, 0, CST),
		time.Date(2024, 6, 13, 0, 0, 0, 0, CST),
		time.Date(2024, 6, 14, 0, 0, 0, 0, CST),
		time.Date(2024, 6, 17, 0, 0, 0, 0, CST),
		time.Date(2024, 6, 18, 0, 0, 0, 0, CST),
	}
	return NewCalendar(days, nil)
}

func TestCalendar_IsTradingDay(t *testing.T) {
	cal := makeTestCalendar()

	friday := time.Date(2024, 6, 14, 10, 0, 0, 0, CST)
	if !cal.IsTradingDay(friday) {
		t.Error("expected 2024-06-14 to be a trading day")
	}

	saturday := time.Date(2024, 6, 15, 10, 0, 0, 0, CST)
	if cal.IsTradingDay(saturday) {
		t.Error("expected 2024-06-15 to not be a trading day")
	}
}

func TestCalendar_NextTradingDaySkipsWeekend(t *testing.T) {
	cal := makeTestCalendar()

	next := cal.NextTradingDay(time.Date(2024, 6, 14, 0, 0, 0, 0, CST))
	want := time.Date(2024, 6, 17, 0, 0, 0, 0, CST)
	if !next.Equal(want) {
		t.Errorf("expected next trading day %v, got %v", want, next)
	}
}

func TestCalendar_PreviousTradingDay(t *testing.T) {
	cal := makeTestCalendar()

	prev := cal.PreviousTradingDay(time.Date(2024, 6, 17, 0, 0, 0, 0, CST))
	want := time.Date(2024, 6, 14, 0, 0, 0, 0, CST)
	if !prev.Equal(want) {
		t.Errorf("expected previous trading day %v, got %v", want, prev)
	}
}

func TestCalendar_DaysRangeInclusive(t *testing.T) {
	cal := makeTestCalendar()

	days := cal.Days(
		time.Date(2024, 6, 13, 0, 0, 0, 0, CST),
		time.Date(2024, 6, 17, 0, 0, 0, 0, CST),
	)
	if len(days) != 3 {
		t.Fatalf("expected 3 trading days, got %d", len(days))
	}
	if days[0].Day() != 13 || days[2].Day() != 17 {
		t.Errorf("unexpected range bounds: %v .. %v", days[0], days[2])
	}
}

func TestCalendar_MarketOpenDuringSession(t *testing.T) {
	cal := makeTestCalendar()

	morning := time.Date(2024, 6, 14, 10, 30, 0, 0, CST)
	if !cal.IsMarketOpen(morning) {
		t.Error("expected market open at 10:30")
	}

	lunch := time.Date(2024, 6, 14, 12, 0, 0, 0, CST)
	if cal.IsMarketOpen(lunch) {
		t.Error("expected market closed over the lunch break")
	}

	afterClose := time.Date(2024, 6, 14, 15, 0, 0, 0, CST)
	if cal.IsMarketOpen(afterClose) {
		t.Error("expected market closed at 15:00 (close minute excluded)")
	}
}

func TestSessionBounds(t *testing.T) {
	day := time.Date(2024, 6, 14, 0, 0, 0, 0, CST)
	periods := DefaultPeriods()

	open := SessionOpen(day, periods)
	if open.Hour() != 9 || open.Minute() != 30 {
		t.Errorf("expected session open 09:30, got %v", open)
	}

	close := SessionClose(day, periods)
	if close.Hour() != 15 || close.Minute() != 0 {
		t.Errorf("expected session close 15:00, got %v", close)
	}
}

func TestCalendar_MonthFirstFireDayRollsForward(t *testing.T) {
	cal := makeTestCalendar()

	// monthday=15 falls on a Saturday; the first trading day with
	// day >= 15 is Monday the 17th.
	day := cal.MonthFirstFireDay(time.Date(2024, 6, 1, 0, 0, 0, 0, CST), 15)
	if day.IsZero() || day.Day() != 17 {
		t.Errorf("expected rollover to 2024-06-17, got %v", day)
	}
}

package corporate

import (
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/parachutel/bullet-trade/internal/data"
	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
	"github.com/parachutel/bullet-trade/internal/pricing"
)

func makeTestLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func seedPosition(t *testing.T, pf *portfolio.Portfolio, sec market.Security, shares int64, price float64) {
	t.Helper()
	if err := pf.ApplyBuy(sec, shares, price, pricing.Fees{}, time.Date(2024, 1, 2, 9, 31, 0, 0, market.CST), "seed"); err != nil {
		t.Fatalf("seed position failed: %v", err)
	}
	pf.UpdateCloseable()
}

func TestPayout_StockAfterTax(t *testing.T) {
	// 1200 shares, 15 per 10 pre-tax, 20% withheld: 1440.00.
	action := data.CorporateAction{
		Security:     market.MustParseSecurity("601318.XSHG"),
		PerBase:      10,
		BonusPreTax:  15.0,
		SecurityType: market.TypeStock,
	}
	if got := Payout(action, 1200); math.Abs(got-1440.00) > 1e-9 {
		t.Errorf("expected payout 1440.00, got %v", got)
	}
}

func TestPayout_FundUntaxed(t *testing.T) {
	// 400 shares, 1.5521 per 1, no tax: 620.84.
	action := data.CorporateAction{
		Security:     market.MustParseSecurity("511880.XSHG"),
		PerBase:      1,
		BonusPreTax:  1.5521,
		SecurityType: market.TypeFund,
	}
	if got := Payout(action, 400); math.Abs(got-620.84) > 1e-9 {
		t.Errorf("expected payout 620.84, got %v", got)
	}
}

func TestEngine_AppliesDividendOnExDate(t *testing.T) {
	sec := market.MustParseSecurity("601318.XSHG")
	exDate := time.Date(2024, 7, 26, 0, 0, 0, 0, market.CST)

	pf := portfolio.New(100000)
	seedPosition(t, pf, sec, 1200, 40)

	e := NewEngine([]data.CorporateAction{{
		Security: sec, ExDate: exDate, PerBase: 10,
		BonusPreTax: 15.0, ScaleFactor: 1, SecurityType: market.TypeStock,
	}}, makeTestLogger())

	cashBefore := pf.Cash()
	e.ApplyForDay(exDate, pf, nil)

	if got := pf.Cash() - cashBefore; math.Abs(got-1440.00) > 1e-9 {
		t.Errorf("expected cash delta +1440.00, got %v", got)
	}
}

func TestEngine_SplitBeforeDividendUsesPreSplitShares(t *testing.T) {
	sec := market.MustParseSecurity("600000.XSHG")
	exDate := time.Date(2024, 7, 26, 0, 0, 0, 0, market.CST)

	pf := portfolio.New(100000)
	seedPosition(t, pf, sec, 1000, 10)

	e := NewEngine([]data.CorporateAction{{
		Security: sec, ExDate: exDate, PerBase: 10,
		BonusPreTax: 5.0, ScaleFactor: 1.5, SecurityType: market.TypeStock,
	}}, makeTestLogger())

	cashBefore := pf.Cash()
	e.ApplyForDay(exDate, pf, nil)

	pos, _ := pf.Position(sec)
	if pos.TotalAmount != 1500 {
		t.Errorf("expected 1500 shares after split, got %d", pos.TotalAmount)
	}
	// Dividend on the pre-split 1000 shares: 1000/10*5*0.8 = 400.
	if got := pf.Cash() - cashBefore; math.Abs(got-400.00) > 1e-9 {
		t.Errorf("expected cash delta +400.00, got %v", got)
	}
	// Cost basis scales inversely with the split.
	if math.Abs(pos.AvgCost-10/1.5) > 1e-9 {
		t.Errorf("expected avg cost %.4f, got %v", 10/1.5, pos.AvgCost)
	}
}

func TestEngine_DefersWhileHalted(t *testing.T) {
	sec := market.MustParseSecurity("513100.XSHG")
	exDate := time.Date(2022, 1, 13, 0, 0, 0, 0, market.CST)
	nextDay := time.Date(2022, 1, 14, 0, 0, 0, 0, market.CST)

	pf := portfolio.New(100000)
	seedPosition(t, pf, sec, 400, 1.2)

	e := NewEngine([]data.CorporateAction{{
		Security: sec, ExDate: exDate, PerBase: 1,
		BonusPreTax: 1.5521, ScaleFactor: 1, SecurityType: market.TypeFund,
	}}, makeTestLogger())

	haltedOn := map[time.Time]bool{market.Midnight(exDate): true}
	halted := func(_ market.Security, day time.Time) bool { return haltedOn[market.Midnight(day)] }

	cashBefore := pf.Cash()
	e.ApplyForDay(exDate, pf, halted)
	if pf.Cash() != cashBefore {
		t.Error("expected no payout while halted")
	}
	if e.PendingDeferred() != 1 {
		t.Fatalf("expected 1 deferred event, got %d", e.PendingDeferred())
	}

	// First unhalted day: the event applies.
	e.ApplyForDay(nextDay, pf, halted)
	if got := pf.Cash() - cashBefore; math.Abs(got-620.84) > 1e-9 {
		t.Errorf("expected deferred payout +620.84, got %v", got)
	}
	if e.PendingDeferred() != 0 {
		t.Errorf("expected backlog drained, got %d", e.PendingDeferred())
	}
}

func TestEngine_DropsEventWhenPositionClosed(t *testing.T) {
	sec := market.MustParseSecurity("601318.XSHG")
	exDate := time.Date(2024, 7, 26, 0, 0, 0, 0, market.CST)

	pf := portfolio.New(100000)

	e := NewEngine([]data.CorporateAction{{
		Security: sec, ExDate: exDate, PerBase: 10,
		BonusPreTax: 15.0, ScaleFactor: 1, SecurityType: market.TypeStock,
	}}, makeTestLogger())

	cashBefore := pf.Cash()
	e.ApplyForDay(exDate, pf, nil)

	if pf.Cash() != cashBefore {
		t.Error("expected no payout without a position")
	}
	if e.PendingDeferred() != 0 {
		t.Error("expected event dropped, not deferred")
	}
}

package matching

import (
	"errors"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
	"github.com/parachutel/bullet-trade/internal/pricing"
	"github.com/parachutel/bullet-trade/internal/risk"
)

var testSec = market.MustParseSecurity("600519.XSHG")

// stubQuotes is a fixed-price QuoteSource for tests.
type stubQuotes struct {
	prices map[market.Security]float64
	halted map[market.Security]bool
	types  map[market.Security]market.SecurityType
}

func (s *stubQuotes) RefPrice(sec market.Security) (float64, bool) {
	p, ok := s.prices[sec]
	return p, ok
}

func (s *stubQuotes) Halted(sec market.Security) bool {
	return s.halted[sec]
}

func (s *stubQuotes) TypeOf(sec market.Security) market.SecurityType {
	if t, ok := s.types[sec]; ok {
		return t
	}
	return market.TypeStock
}

func makeTestEngine(capital float64, price float64) (*Engine, *portfolio.Portfolio, *stubQuotes) {
	pf := portfolio.New(capital)
	quotes := &stubQuotes{
		prices: map[market.Security]float64{testSec: price},
		halted: map[market.Security]bool{},
		types:  map[market.Security]market.SecurityType{},
	}
	now := func() time.Time { return time.Date(2024, 6, 14, 9, 31, 0, 0, market.CST) }
	e := NewEngine(pf, quotes, nil, now, log.New(io.Discard, "", 0))
	// Zero slippage keeps fill prices predictable in tests.
	e.SetSlippage(pricing.Slippage{})
	return e, pf, quotes
}

func TestEngine_MarketBuyFills(t *testing.T) {
	e, pf, _ := makeTestEngine(100000, 100)

	order, err := e.OrderShares(testSec, 100, portfolio.MarketOrder(0.02))
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if order.Status != portfolio.StatusFilled {
		t.Fatalf("expected filled, got %s (%s)", order.Status, order.Message)
	}
	if order.FilledAmount != 100 || order.AvgFillPrice != 100 {
		t.Errorf("unexpected fill: %d @ %v", order.FilledAmount, order.AvgFillPrice)
	}
	if order.Commission != 5 {
		t.Errorf("expected minimum commission 5, got %v", order.Commission)
	}

	p, _ := pf.Position(testSec)
	if p.TotalAmount != 100 {
		t.Errorf("expected position 100, got %d", p.TotalAmount)
	}
}

func TestEngine_BuyRoundsToLot(t *testing.T) {
	e, pf, _ := makeTestEngine(100000, 100)

	order, err := e.OrderShares(testSec, 250, portfolio.MarketOrder(0.02))
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if order.FilledAmount != 200 {
		t.Errorf("expected 250 to round to 200, got %d", order.FilledAmount)
	}

	p, _ := pf.Position(testSec)
	if p.TotalAmount != 200 {
		t.Errorf("expected position 200, got %d", p.TotalAmount)
	}
}

func TestEngine_SubLotBuyRejected(t *testing.T) {
	e, _, _ := makeTestEngine(100000, 100)

	order, err := e.OrderShares(testSec, 50, portfolio.MarketOrder(0.02))
	if err == nil {
		t.Fatal("expected sub-lot buy to fail")
	}
	if order.Status != portfolio.StatusRejected {
		t.Errorf("expected rejected, got %s", order.Status)
	}
}

func TestEngine_InsufficientCashRejected(t *testing.T) {
	e, pf, _ := makeTestEngine(1000, 100)

	order, err := e.OrderShares(testSec, 100, portfolio.MarketOrder(0.02))
	var insufficient *portfolio.InsufficientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientError, got %v", err)
	}
	if order.Status != portfolio.StatusRejected {
		t.Errorf("expected rejected, got %s", order.Status)
	}
	if pf.Cash() != 1000 {
		t.Error("expected portfolio unchanged")
	}
}

func TestEngine_HaltedRejected(t *testing.T) {
	e, _, quotes := makeTestEngine(100000, 100)
	quotes.halted[testSec] = true

	order, err := e.OrderShares(testSec, 100, portfolio.MarketOrder(0.02))
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if order.Status != portfolio.StatusRejected {
		t.Errorf("expected rejected, got %s", order.Status)
	}
}

func TestEngine_LimitBuyBelowPriceRejected(t *testing.T) {
	e, _, _ := makeTestEngine(100000, 100)

	order, err := e.OrderShares(testSec, 100, portfolio.LimitOrder(99))
	if err == nil {
		t.Fatal("expected limit below market to fail")
	}
	if order.Status != portfolio.StatusRejected {
		t.Errorf("expected rejected, got %s", order.Status)
	}
}

func TestEngine_SellFillsUpToCloseable(t *testing.T) {
	e, pf, _ := makeTestEngine(100000, 100)

	if _, err := e.OrderShares(testSec, 300, portfolio.MarketOrder(0.02)); err != nil {
		t.Fatalf("seed buy failed: %v", err)
	}
	pf.UpdateCloseable()

	// Request 500 with only 300 closeable: fill 300, remainder cancelled.
	order, err := e.OrderShares(testSec, -500, portfolio.MarketOrder(0.02))
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if order.Status != portfolio.StatusPartial {
		t.Errorf("expected partial, got %s", order.Status)
	}
	if order.FilledAmount != 300 {
		t.Errorf("expected 300 filled, got %d", order.FilledAmount)
	}
	if _, held := pf.Position(testSec); held {
		t.Error("expected position closed")
	}
}

func TestEngine_SameDaySellRejected(t *testing.T) {
	e, _, _ := makeTestEngine(100000, 100)

	if _, err := e.OrderShares(testSec, 100, portfolio.MarketOrder(0.02)); err != nil {
		t.Fatalf("seed buy failed: %v", err)
	}

	// No before-open yet: nothing closeable under T+1.
	order, err := e.OrderShares(testSec, -100, portfolio.MarketOrder(0.02))
	var insufficient *portfolio.InsufficientError
	if !errors.As(err, &insufficient) || insufficient.Resource != "closeable" {
		t.Fatalf("expected closeable shortage, got %v", err)
	}
	if order.Status != portfolio.StatusRejected {
		t.Errorf("expected rejected, got %s", order.Status)
	}
}

func TestEngine_SlippageMovesBuyPriceUp(t *testing.T) {
	e, _, _ := makeTestEngine(100000, 100)
	e.SetSlippage(pricing.Slippage{BuyPct: 0.001, SellPct: 0.001})

	order, err := e.OrderShares(testSec, 100, portfolio.MarketOrder(0.02))
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	// 100 * 1.001 = 100.1, on-tick already.
	if math.Abs(order.AvgFillPrice-100.1) > 1e-9 {
		t.Errorf("expected fill at 100.1, got %v", order.AvgFillPrice)
	}
}

func TestEngine_OrderValueSizesByRef(t *testing.T) {
	e, _, _ := makeTestEngine(100000, 100)

	order, err := e.OrderValue(testSec, 25000, portfolio.MarketOrder(0.02))
	if err != nil {
		t.Fatalf("OrderValue failed: %v", err)
	}
	if order.FilledAmount != 200 {
		t.Errorf("expected 25000/100 floored to 200 shares, got %d", order.FilledAmount)
	}
}

func TestEngine_OrderTargetDiffsAgainstTotal(t *testing.T) {
	e, pf, _ := makeTestEngine(100000, 100)

	if _, err := e.OrderShares(testSec, 200, portfolio.MarketOrder(0.02)); err != nil {
		t.Fatalf("seed buy failed: %v", err)
	}

	// Target 400: delta is +200 against the total amount even though
	// nothing is closeable yet.
	order, err := e.OrderTarget(testSec, 400, portfolio.MarketOrder(0.02))
	if err != nil {
		t.Fatalf("OrderTarget failed: %v", err)
	}
	if order.FilledAmount != 200 {
		t.Errorf("expected delta buy of 200, got %d", order.FilledAmount)
	}

	p, _ := pf.Position(testSec)
	if p.TotalAmount != 400 {
		t.Errorf("expected position 400, got %d", p.TotalAmount)
	}

	// Target equal to current yields no order.
	if o, err := e.OrderTarget(testSec, 400, portfolio.MarketOrder(0.02)); err != nil || o != nil {
		t.Errorf("expected no-op order, got %v, %v", o, err)
	}
}

func TestEngine_RiskVetoRejectsOrder(t *testing.T) {
	pf := portfolio.New(100000)
	quotes := &stubQuotes{
		prices: map[market.Security]float64{testSec: 100},
		halted: map[market.Security]bool{},
		types:  map[market.Security]market.SecurityType{},
	}
	checker := risk.NewChecker(risk.Limits{MaxOrderValue: 5000})
	now := func() time.Time { return time.Date(2024, 6, 14, 9, 31, 0, 0, market.CST) }
	e := NewEngine(pf, quotes, checker, now, log.New(io.Discard, "", 0))
	e.SetSlippage(pricing.Slippage{})

	order, err := e.OrderShares(testSec, 100, portfolio.MarketOrder(0.02))
	var reason risk.RejectionReason
	if !errors.As(err, &reason) {
		t.Fatalf("expected risk rejection, got %v", err)
	}
	if order.Status != portfolio.StatusRejected {
		t.Errorf("expected rejected, got %s", order.Status)
	}
	if pf.Cash() != 100000 {
		t.Error("expected portfolio unchanged after veto")
	}
}

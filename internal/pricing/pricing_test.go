package pricing

import (
	"math"
	"testing"

	"github.com/parachutel/bullet-trade/internal/market"
)

func TestLotRuleFor_Boards(t *testing.T) {
	cases := []struct {
		sec    string
		minLot int64
		step   int64
	}{
		{"600519.XSHG", 100, 100},
		{"000001.XSHE", 100, 100},
		{"688111.XSHG", 200, 1},
		{"113050.XSHG", 10, 10},
		{"123456.XSHE", 10, 10},
		{"832000.BJ", 100, 1},
	}
	for _, c := range cases {
		r := LotRuleFor(market.MustParseSecurity(c.sec))
		if r.MinLot != c.minLot || r.Step != c.step {
			t.Errorf("%s: expected lot %d/%d, got %d/%d", c.sec, c.minLot, c.step, r.MinLot, r.Step)
		}
	}
}

func TestLotRule_RoundBuy(t *testing.T) {
	std := LotRule{MinLot: 100, Step: 100}
	if got := std.RoundBuy(250); got != 200 {
		t.Errorf("expected 250 to floor to 200, got %d", got)
	}
	if got := std.RoundBuy(99); got != 0 {
		t.Errorf("expected sub-lot buy to round to 0, got %d", got)
	}

	star := LotRule{MinLot: 200, Step: 1}
	if got := star.RoundBuy(257); got != 257 {
		t.Errorf("expected STAR amount to keep single-share steps, got %d", got)
	}
	if got := star.RoundBuy(150); got != 0 {
		t.Errorf("expected STAR sub-lot buy to round to 0, got %d", got)
	}
}

func TestLotRule_RoundSellOddLot(t *testing.T) {
	std := LotRule{MinLot: 100, Step: 100}

	// Selling the whole closeable amount is allowed even below min lot.
	if got := std.RoundSell(50, 50); got != 50 {
		t.Errorf("expected odd-lot sell of full closeable 50, got %d", got)
	}

	// Partial sells floor to the step.
	if got := std.RoundSell(250, 400); got != 200 {
		t.Errorf("expected partial sell to floor to 200, got %d", got)
	}

	// Requests above the closeable amount cap at the closeable amount.
	if got := std.RoundSell(900, 350); got != 350 {
		t.Errorf("expected sell capped at closeable 350, got %d", got)
	}
}

func TestTickSize(t *testing.T) {
	if got := TickSize(market.TypeETF, 3.5); got != 0.001 {
		t.Errorf("expected ETF tick 0.001, got %v", got)
	}
	if got := TickSize(market.TypeStock, 12.34); got != 0.01 {
		t.Errorf("expected stock tick 0.01, got %v", got)
	}
	if got := TickSize(market.TypeStock, 0.98); got != 0.001 {
		t.Errorf("expected sub-1 stock tick 0.001, got %v", got)
	}
}

func TestRoundToTick_Direction(t *testing.T) {
	if got := RoundToTick(10.123, 0.01, Buy); math.Abs(got-10.13) > 1e-9 {
		t.Errorf("expected buy to round up to 10.13, got %v", got)
	}
	if got := RoundToTick(10.128, 0.01, Sell); math.Abs(got-10.12) > 1e-9 {
		t.Errorf("expected sell to round down to 10.12, got %v", got)
	}
	// Already on the grid: unchanged in both directions.
	if got := RoundToTick(10.12, 0.01, Buy); math.Abs(got-10.12) > 1e-9 {
		t.Errorf("expected on-grid price unchanged, got %v", got)
	}
}

func TestCageFor_MainBoard(t *testing.T) {
	c := CageFor(market.MustParseSecurity("600519.XSHG"), 100)
	if math.Abs(c.Lower-98) > 1e-9 || math.Abs(c.Upper-102) > 1e-9 {
		t.Errorf("expected cage [98, 102], got [%v, %v]", c.Lower, c.Upper)
	}
	if got := c.Clamp(105); math.Abs(got-102) > 1e-9 {
		t.Errorf("expected clamp to 102, got %v", got)
	}
}

func TestCageFor_BeijingAbsoluteFloor(t *testing.T) {
	// Low-priced Beijing stock: the ±0.1 absolute band dominates.
	c := CageFor(market.MustParseSecurity("832000.BJ"), 1.0)
	if math.Abs(c.Upper-1.1) > 1e-9 {
		t.Errorf("expected upper 1.1 (ref+0.1), got %v", c.Upper)
	}
	if math.Abs(c.Lower-0.9) > 1e-9 {
		t.Errorf("expected lower 0.9 (ref-0.1), got %v", c.Lower)
	}

	// High-priced Beijing stock: the ±5% band dominates.
	c = CageFor(market.MustParseSecurity("832000.BJ"), 100)
	if math.Abs(c.Upper-105) > 1e-9 || math.Abs(c.Lower-95) > 1e-9 {
		t.Errorf("expected cage [95, 105], got [%v, %v]", c.Lower, c.Upper)
	}
}

func TestSlippage_Apply(t *testing.T) {
	s := Slippage{BuyPct: 0.001, SellPct: 0.002}
	if got := s.Apply(100, Buy); math.Abs(got-100.1) > 1e-9 {
		t.Errorf("expected buy drift to 100.1, got %v", got)
	}
	if got := s.Apply(100, Sell); math.Abs(got-99.8) > 1e-9 {
		t.Errorf("expected sell drift to 99.8, got %v", got)
	}
}

func TestProtectPrice_ClampedToCage(t *testing.T) {
	sec := market.MustParseSecurity("600519.XSHG")
	// 5% protection exceeds the 2% cage; result clamps at the cage.
	if got := ProtectPrice(sec, 100, 0.05, Buy); math.Abs(got-102) > 1e-9 {
		t.Errorf("expected protect price clamped to 102, got %v", got)
	}
	if got := ProtectPrice(sec, 100, 0.05, Sell); math.Abs(got-98) > 1e-9 {
		t.Errorf("expected protect price clamped to 98, got %v", got)
	}
}

func TestFeesFor_BuyMinimumCommission(t *testing.T) {
	// 100 shares at 100: value 10000, 0.03% = 3 → floor at 5.
	f := FeesFor(DefaultCosts(), market.TypeStock, Buy, 100, 100)
	if f.Commission != 5 {
		t.Errorf("expected minimum commission 5, got %v", f.Commission)
	}
	if f.Tax != 0 {
		t.Errorf("expected no tax on buys, got %v", f.Tax)
	}
}

func TestFeesFor_SellStampTax(t *testing.T) {
	// 10000 shares at 10: value 100000, commission 30, tax 100.
	f := FeesFor(DefaultCosts(), market.TypeStock, Sell, 10000, 10)
	if f.Commission != 30 {
		t.Errorf("expected commission 30, got %v", f.Commission)
	}
	if f.Tax != 100 {
		t.Errorf("expected stamp tax 100, got %v", f.Tax)
	}
}

func TestFeesFor_ETFNoStampTax(t *testing.T) {
	f := FeesFor(DefaultCosts(), market.TypeETF, Sell, 10000, 10)
	if f.Tax != 0 {
		t.Errorf("expected no stamp tax for ETF sells, got %v", f.Tax)
	}
}

package analytics

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/parachutel/bullet-trade/internal/market"
	"github.com/parachutel/bullet-trade/internal/portfolio"
	"github.com/parachutel/bullet-trade/internal/pricing"
)

func makeRecords(values ...float64) []portfolio.DailyRecord {
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, market.CST)
	out := make([]portfolio.DailyRecord, len(values))
	for i, v := range values {
		out[i] = portfolio.DailyRecord{Date: day.AddDate(0, 0, i), TotalValue: v, Cash: v}
	}
	return out
}

func TestAnalyze_EmptyRecords(t *testing.T) {
	report := Analyze(nil, nil, 100000)
	if report == nil {
		t.Fatal("expected non-nil report")
	}
	if report.TradingDays != 0 {
		t.Errorf("expected empty report, got %d days", report.TradingDays)
	}
}

func TestAnalyze_TotalReturn(t *testing.T) {
	report := Analyze(makeRecords(101000, 102000, 110000), nil, 100000)
	if math.Abs(report.TotalReturn-0.10) > 1e-9 {
		t.Errorf("expected total return 10%%, got %v", report.TotalReturn)
	}
	if report.FinalValue != 110000 {
		t.Errorf("expected final value 110000, got %v", report.FinalValue)
	}
}

func TestAnalyze_MaxDrawdown(t *testing.T) {
	// Peak 120k, trough 90k: drawdown 30k = 25% of peak.
	report := Analyze(makeRecords(110000, 120000, 90000, 100000), nil, 100000)
	if math.Abs(report.MaxDrawdown-30000) > 1e-9 {
		t.Errorf("expected max drawdown 30000, got %v", report.MaxDrawdown)
	}
	if math.Abs(report.MaxDrawdownPct-25) > 1e-9 {
		t.Errorf("expected drawdown 25%%, got %v", report.MaxDrawdownPct)
	}
}

func TestAnalyze_TradeActivity(t *testing.T) {
	sec := market.MustParseSecurity("600519.XSHG")
	trades := []portfolio.Trade{
		{Security: sec, Side: pricing.Buy, Amount: 100, Price: 100, Commission: 5},
		{Security: sec, Side: pricing.Sell, Amount: 100, Price: 110, Commission: 5, Tax: 11},
	}
	report := Analyze(makeRecords(100000), trades, 100000)

	if report.BuyTrades != 1 || report.SellTrades != 1 {
		t.Errorf("expected 1 buy and 1 sell, got %d/%d", report.BuyTrades, report.SellTrades)
	}
	if report.TotalCommission != 10 || report.TotalTax != 11 {
		t.Errorf("unexpected fees: commission=%v tax=%v", report.TotalCommission, report.TotalTax)
	}
	if math.Abs(report.Turnover-0.21) > 1e-9 {
		t.Errorf("expected turnover 0.21x, got %v", report.Turnover)
	}
}

func TestFormatReport(t *testing.T) {
	report := Analyze(makeRecords(101000, 102000), nil, 100000)
	text := FormatReport(report)
	if !strings.Contains(text, "PERFORMANCE REPORT") {
		t.Error("expected report banner")
	}
	if !strings.Contains(text, "Total return") {
		t.Error("expected returns section")
	}

	if got := FormatReport(&PerformanceReport{}); !strings.Contains(got, "No daily records") {
		t.Errorf("expected empty-report message, got %q", got)
	}
}

// Package analytics computes the run's performance report from the
// daily record series and the fill history.
package analytics

import (
	"fmt"
	"math"
	"strings"

	"github.com/parachutel/bullet-trade/internal/portfolio"
)

// PerformanceReport summarizes one backtest or live run.
type PerformanceReport struct {
	// Returns.
	TotalReturn      float64 // fraction, e.g. 0.12
	AnnualizedReturn float64

	// Risk metrics.
	MaxDrawdown    float64 // absolute, in currency
	MaxDrawdownPct float64 // percentage from peak
	SharpeRatio    float64 // annualized, from daily returns
	Volatility     float64 // annualized stddev of daily returns

	// Trading activity.
	TotalTrades     int
	BuyTrades       int
	SellTrades      int
	TotalCommission float64
	TotalTax        float64
	Turnover        float64 // total traded value / capital base

	TradingDays int
	FinalValue  float64
}

// tradingDaysPerYear is the annualization base for A-share markets.
const tradingDaysPerYear = 244

// Analyze computes the report from daily records and trades.
// Returns an empty report (not nil) when no records exist.
func Analyze(records []portfolio.DailyRecord, trades []portfolio.Trade, capitalBase float64) *PerformanceReport {
	report := &PerformanceReport{}
	if len(records) == 0 {
		return report
	}

	report.TradingDays = len(records)
	report.FinalValue = records[len(records)-1].TotalValue
	report.TotalReturn = report.FinalValue/capitalBase - 1

	years := float64(len(records)) / tradingDaysPerYear
	if years > 0 && report.FinalValue > 0 {
		report.AnnualizedReturn = math.Pow(report.FinalValue/capitalBase, 1/years) - 1
	}

	// Drawdown from the running peak of the equity curve.
	peak := capitalBase
	for _, rec := range records {
		if rec.TotalValue > peak {
			peak = rec.TotalValue
		}
		dd := peak - rec.TotalValue
		if dd > report.MaxDrawdown {
			report.MaxDrawdown = dd
			if peak > 0 {
				report.MaxDrawdownPct = dd / peak * 100
			}
		}
	}

	// Daily returns for Sharpe and volatility.
	var dailyReturns []float64
	prev := capitalBase
	for _, rec := range records {
		if prev > 0 {
			dailyReturns = append(dailyReturns, rec.TotalValue/prev-1)
		}
		prev = rec.TotalValue
	}
	mean, std := meanStd(dailyReturns)
	report.Volatility = std * math.Sqrt(tradingDaysPerYear)
	if std > 0 {
		report.SharpeRatio = mean / std * math.Sqrt(tradingDaysPerYear)
	}

	// Activity.
	for _, t := range trades {
		report.TotalTrades++
		if t.Side.String() == "buy" {
			report.BuyTrades++
		} else {
			report.SellTrades++
		}
		report.TotalCommission += t.Commission
		report.TotalTax += t.Tax
		report.Turnover += float64(t.Amount) * t.Price / capitalBase
	}

	return report
}

// FormatReport renders the report for the operator log.
func FormatReport(report *PerformanceReport) string {
	if report == nil || report.TradingDays == 0 {
		return "No daily records to analyze."
	}

	var b strings.Builder

	b.WriteString("═══════════════════════════════════════════════════\n")
	b.WriteString("              PERFORMANCE REPORT\n")
	b.WriteString("═══════════════════════════════════════════════════\n\n")

	b.WriteString("── RETURNS ──\n")
	fmt.Fprintf(&b, "  Trading days:    %d\n", report.TradingDays)
	fmt.Fprintf(&b, "  Final value:     ¥%.2f\n", report.FinalValue)
	fmt.Fprintf(&b, "  Total return:    %.2f%%\n", report.TotalReturn*100)
	fmt.Fprintf(&b, "  Annualized:      %.2f%%\n", report.AnnualizedReturn*100)
	b.WriteString("\n")

	b.WriteString("── RISK METRICS ──\n")
	fmt.Fprintf(&b, "  Max drawdown:    ¥%.2f (%.2f%%)\n", report.MaxDrawdown, report.MaxDrawdownPct)
	fmt.Fprintf(&b, "  Volatility:      %.2f%%\n", report.Volatility*100)
	fmt.Fprintf(&b, "  Sharpe ratio:    %.2f\n", report.SharpeRatio)
	b.WriteString("\n")

	b.WriteString("── ACTIVITY ──\n")
	fmt.Fprintf(&b, "  Trades:          %d (%d buys, %d sells)\n",
		report.TotalTrades, report.BuyTrades, report.SellTrades)
	fmt.Fprintf(&b, "  Commission:      ¥%.2f\n", report.TotalCommission)
	fmt.Fprintf(&b, "  Stamp tax:       ¥%.2f\n", report.TotalTax)
	fmt.Fprintf(&b, "  Turnover:        %.2fx\n", report.Turnover)
	b.WriteString("\n")

	b.WriteString("═══════════════════════════════════════════════════\n")
	return b.String()
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}

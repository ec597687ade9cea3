package analytics

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"momentum/types"

	"github.com/shopspring/decimal"
)

type Report struct {
	StartDate   time.Time
	TotalPeriod time.Duration

	StartValue decimal.Decimal
	EndValue   decimal.Decimal
	CAGR       float64

	// Drawdown in account currency, as a fraction of the peak, and the time
	// from the peak to the trough.
	MaxDrawdown        decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
	MaxDrawdownDays    time.Duration

	Metrics       Metrics
	Trades        TradeStats
	RollingSharpe []float64
	Drawdowns     []float64
}

// ReturnsFromEquity converts an equity curve into period returns. Periods
// that start from a non-positive value are skipped.
func ReturnsFromEquity(equity []types.EquitySnapshot) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	prev := equity[0].Value
	for _, snap := range equity[1:] {
		if prev.IsPositive() {
			out = append(out, snap.Value.Div(prev).Sub(decimal.NewFromInt(1)).InexactFloat64())
		}
		prev = snap.Value
	}
	return out
}

// GenerateReport builds the full report for an equity curve and trade log.
// rollingWindow sets the rolling Sharpe window.
func GenerateReport(equity []types.EquitySnapshot, trades []types.Trade, benchmark []float64, rollingWindow int) (*Report, error) {
	if len(equity) < 2 {
		return nil, fmt.Errorf("equity curve has %d points: %w", len(equity), ErrNoReturns)
	}
	curve := append([]types.EquitySnapshot(nil), equity...)
	sort.SliceStable(curve, func(i, j int) bool { return curve[i].Time.Before(curve[j].Time) })
	returns := ReturnsFromEquity(curve)

	metrics, err := Compute(returns, benchmark)
	if err != nil {
		return nil, err
	}

	report := &Report{
		StartDate:   curve[0].Time,
		TotalPeriod: curve[len(curve)-1].Time.Sub(curve[0].Time).Truncate(24 * time.Hour),
		StartValue:  curve[0].Value,
		EndValue:    curve[len(curve)-1].Value,
		Metrics:     metrics,
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		report.CAGR = calcCAGR(curve, &wg)
	}()
	go func() {
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDays = calcDrawdownMetrics(curve, &wg)
	}()
	go func() {
		defer wg.Done()
		report.Trades = TradeDistribution(trades)
	}()
	go func() {
		defer wg.Done()
		report.RollingSharpe = RollingSharpe(returns, rollingWindow)
		report.Drawdowns = DrawdownCurve(returns)
	}()
	wg.Wait()

	return report, nil
}

func calcCAGR(curve []types.EquitySnapshot, wg *sync.WaitGroup) float64 {
	defer wg.Done()
	if len(curve) < 2 {
		return 0
	}
	start, end := curve[0], curve[len(curve)-1]
	if !start.Value.IsPositive() {
		return 0
	}
	// 365.25 days to account for leap years
	years := end.Time.Sub(start.Time).Hours() / (24.0 * 365.25)
	if years <= 0 {
		return 0
	}
	ratio := end.Value.Div(start.Value)
	if !ratio.IsPositive() {
		return 0
	}
	return math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0
}

func calcDrawdownMetrics(curve []types.EquitySnapshot, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal, time.Duration) {
	defer wg.Done()
	if len(curve) == 0 {
		return decimal.Zero, decimal.Zero, 0
	}

	peak := decimal.Zero
	var peakTime time.Time
	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	var maxDDDuration time.Duration

	for i, snap := range curve {
		if i == 0 || snap.Value.GreaterThan(peak) {
			peak = snap.Value
			peakTime = snap.Time
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(snap.Value)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDDPct = dd.Div(peak)
			maxDDDuration = snap.Time.Sub(peakTime)
		}
	}
	return maxDD, maxDDPct, maxDDDuration
}

// PrintReport writes a human-readable summary.
func PrintReport(w io.Writer, report *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	m := report.Metrics
	tr := report.Trades

	fmt.Fprintln(tw, "===== Momentum Strategy Report =====")
	fmt.Fprintf(tw, "Start Date:\t%s\n", report.StartDate.Format("2006-01-02"))
	fmt.Fprintf(tw, "Total Period:\t%d days\n", report.TotalPeriod/(24*time.Hour))
	fmt.Fprintf(tw, "Start / End Value:\t%s / %s\n", report.StartValue.StringFixed(2), report.EndValue.StringFixed(2))

	fmt.Fprintln(tw, "\n-- Performance --")
	fmt.Fprintf(tw, "Total Return:\t%.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(tw, "Annualized Return:\t%.2f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(tw, "CAGR:\t%.2f%%\n", report.CAGR*100)
	fmt.Fprintf(tw, "Volatility:\t%.2f%%\n", m.Volatility*100)
	fmt.Fprintf(tw, "Sharpe Ratio:\t%.3f\n", m.SharpeRatio)
	fmt.Fprintf(tw, "Calmar Ratio:\t%.3f\n", m.CalmarRatio)
	fmt.Fprintf(tw, "Win Rate:\t%.2f%%\n", m.WinRate*100)
	fmt.Fprintf(tw, "Profit Factor:\t%s\n", formatRatio(m.ProfitFactor))
	fmt.Fprintf(tw, "Average Win / Loss:\t%.2f%% / %.2f%%\n", m.AvgWin*100, m.AvgLoss*100)
	fmt.Fprintf(tw, "Win/Loss Ratio:\t%.2f\n", m.WinLossRatio)
	if m.HasBenchmark {
		fmt.Fprintf(tw, "Beta:\t%.3f\n", m.Beta)
		fmt.Fprintf(tw, "Alpha:\t%.2f%%\n", m.Alpha*100)
	}

	fmt.Fprintln(tw, "\n-- Drawdown --")
	fmt.Fprintf(tw, "Max Drawdown:\t%.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(tw, "Max Drawdown (value):\t%s\n", report.MaxDrawdown.StringFixed(2))
	fmt.Fprintf(tw, "Max Drawdown Duration:\t%v\n", report.MaxDrawdownDays)

	fmt.Fprintln(tw, "\n-- Trades --")
	if tr.Empty {
		fmt.Fprintln(tw, "No closed trades")
	} else {
		fmt.Fprintf(tw, "Total Trades:\t%d\n", tr.Count)
		fmt.Fprintf(tw, "Winning / Losing:\t%d / %d\n", tr.Wins, tr.Losses)
		fmt.Fprintf(tw, "Net Profit:\t%s\n", tr.NetProfit.StringFixed(2))
		fmt.Fprintf(tw, "Average Trade PnL:\t%s\n", tr.MeanPnL.StringFixed(2))
		fmt.Fprintf(tw, "Best / Worst Trade:\t%s / %s\n", tr.BestPnL.StringFixed(2), tr.WorstPnL.StringFixed(2))
		fmt.Fprintf(tw, "Average Duration:\t%.1f bars\n", tr.MeanDuration)
		fmt.Fprintf(tw, "Trade Frequency:\t%.2f trades/day\n", tr.Frequency)
		fmt.Fprintf(tw, "Trade Profit Factor:\t%s\n", formatRatio(tr.ProfitFactor))
		fmt.Fprintf(tw, "Max Consecutive Losses:\t%d\n", tr.MaxConsecutiveLosses)
		fmt.Fprintf(tw, "Total Fees:\t%s\n", tr.TotalFees.StringFixed(2))
	}
	fmt.Fprintln(tw, "====================================")
	return tw.Flush()
}

func formatRatio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

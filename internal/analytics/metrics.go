// Package analytics turns a finished return series and trade log into
// performance statistics. Every function works on its own copy of the input
// and never touches engine state.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// TradingDays is the annualization factor for daily returns.
const TradingDays = 252

var (
	ErrNoReturns       = errors.New("empty return series")
	ErrBenchmarkLength = errors.New("benchmark length differs from returns")
)

type Metrics struct {
	Periods          int
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      float64
	MaxDrawdown      float64
	CalmarRatio      float64
	WinRate          float64
	ProfitFactor     float64
	AvgWin           float64
	AvgLoss          float64
	WinLossRatio     float64

	HasBenchmark bool
	Beta         float64
	Alpha        float64
}

// Compute derives every metric from one snapshot of returns. benchmark is
// optional; when given it must have the same length.
func Compute(returns, benchmark []float64) (Metrics, error) {
	if len(returns) == 0 {
		return Metrics{}, ErrNoReturns
	}
	if benchmark != nil && len(benchmark) != len(returns) {
		return Metrics{}, fmt.Errorf("%w: %d returns, %d benchmark", ErrBenchmarkLength, len(returns), len(benchmark))
	}
	r := append([]float64(nil), returns...)
	var b []float64
	if benchmark != nil {
		b = append([]float64(nil), benchmark...)
	}

	m := Metrics{Periods: len(r)}
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		m.TotalReturn = TotalReturn(r)
		m.AnnualizedReturn = AnnualizedReturn(r)
	}()
	go func() {
		defer wg.Done()
		m.Volatility = Volatility(r)
		m.SharpeRatio = SharpeRatio(r)
	}()
	go func() {
		defer wg.Done()
		m.MaxDrawdown = MaxDrawdown(r)
	}()
	go func() {
		defer wg.Done()
		m.WinRate = WinRate(r)
		m.ProfitFactor = ProfitFactor(r)
		m.AvgWin, m.AvgLoss = AvgWinLoss(r)
		m.WinLossRatio = winLossRatio(m.AvgWin, m.AvgLoss)
	}()
	wg.Wait()

	if m.MaxDrawdown != 0 {
		m.CalmarRatio = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)
	}
	if b != nil {
		m.HasBenchmark = true
		m.Beta = Beta(r, b)
		m.Alpha = m.AnnualizedReturn - m.Beta*AnnualizedReturn(b)
	}
	return m, nil
}

// TotalReturn is the compounded return of the series.
func TotalReturn(returns []float64) float64 {
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	return growth - 1
}

// AnnualizedReturn scales the compounded growth to TradingDays periods.
// A series that loses everything annualizes to -1.
func AnnualizedReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	growth := TotalReturn(returns) + 1
	if growth <= 0 {
		return -1
	}
	return math.Pow(growth, float64(TradingDays)/float64(len(returns))) - 1
}

func Volatility(returns []float64) float64 {
	return stdev(returns) * math.Sqrt(TradingDays)
}

// SharpeRatio is the annualized mean over annualized volatility, zero for a
// flat series.
func SharpeRatio(returns []float64) float64 {
	sd := stdev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) * TradingDays / (sd * math.Sqrt(TradingDays))
}

// CumulativeReturns is the compounded growth path, starting after the first period.
func CumulativeReturns(returns []float64) []float64 {
	out := make([]float64, len(returns))
	growth := 1.0
	for i, r := range returns {
		growth *= 1 + r
		out[i] = growth
	}
	return out
}

// DrawdownCurve is the relative distance of the cumulative path from its
// running maximum. Every value is <= 0.
func DrawdownCurve(returns []float64) []float64 {
	cum := CumulativeReturns(returns)
	out := make([]float64, len(cum))
	peak := math.Inf(-1)
	for i, c := range cum {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			out[i] = (c - peak) / peak
		}
	}
	return out
}

func MaxDrawdown(returns []float64) float64 {
	worst := 0.0
	for _, dd := range DrawdownCurve(returns) {
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

// ProfitFactor is gains over losses, +Inf when no period lost.
func ProfitFactor(returns []float64) float64 {
	var gains, losses float64
	for _, r := range returns {
		switch {
		case r > 0:
			gains += r
		case r < 0:
			losses += r
		}
	}
	if losses == 0 {
		return math.Inf(1)
	}
	return math.Abs(gains / losses)
}

// AvgWinLoss returns the mean positive and the mean negative period. The
// loss is negative; either is zero when no such period exists.
func AvgWinLoss(returns []float64) (avgWin, avgLoss float64) {
	var wins, losses []float64
	for _, r := range returns {
		switch {
		case r > 0:
			wins = append(wins, r)
		case r < 0:
			losses = append(losses, r)
		}
	}
	return mean(wins), mean(losses)
}

func winLossRatio(avgWin, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 0
	}
	return math.Abs(avgWin / avgLoss)
}

// Beta is cov(r, b) / var(b), zero when the benchmark does not move.
func Beta(returns, benchmark []float64) float64 {
	v := variance(benchmark)
	if v == 0 {
		return 0
	}
	return covariance(returns, benchmark) / v
}

// RollingSharpe computes the annualized Sharpe ratio over each trailing
// window. The result has len(returns)-window+1 points; windows with zero
// deviation yield 0.
func RollingSharpe(returns []float64, window int) []float64 {
	if window < 2 || len(returns) < window {
		return nil
	}
	out := make([]float64, 0, len(returns)-window+1)
	for end := window; end <= len(returns); end++ {
		out = append(out, SharpeRatio(returns[end-window:end]))
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance is the sample variance (n-1), zero below two points.
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

func stdev(xs []float64) float64 {
	return math.Sqrt(variance(xs))
}

func covariance(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var sum float64
	for i := range xs {
		sum += (xs[i] - mx) * (ys[i] - my)
	}
	return sum / float64(len(xs)-1)
}

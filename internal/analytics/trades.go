package analytics

import (
	"math"
	"sort"

	"momentum/types"

	"github.com/shopspring/decimal"
)

// TradeStats summarizes a closed trade log. Empty is set, and every other
// field left zero, when there are no trades.
type TradeStats struct {
	Empty        bool
	Count        int
	Wins         int
	Losses       int
	WinRate      float64
	MeanPnL      decimal.Decimal
	BestPnL      decimal.Decimal
	WorstPnL     decimal.Decimal
	AvgWin       decimal.Decimal
	AvgLoss      decimal.Decimal
	NetProfit    decimal.Decimal
	TotalFees    decimal.Decimal
	MeanDuration float64
	// Frequency is trades per trading day over a TradingDays year.
	Frequency            float64
	ProfitFactor         float64
	MaxConsecutiveLosses int
}

func TradeDistribution(trades []types.Trade) TradeStats {
	if len(trades) == 0 {
		return TradeStats{Empty: true}
	}
	snapshot := append([]types.Trade(nil), trades...)

	stats := TradeStats{
		Count:    len(snapshot),
		BestPnL:  snapshot[0].PnL,
		WorstPnL: snapshot[0].PnL,
	}
	sumWins := decimal.Zero
	sumLosses := decimal.Zero // absolute
	duration := 0
	for _, tr := range snapshot {
		stats.NetProfit = stats.NetProfit.Add(tr.PnL)
		stats.TotalFees = stats.TotalFees.Add(tr.Fees)
		duration += tr.Duration
		if tr.PnL.GreaterThan(stats.BestPnL) {
			stats.BestPnL = tr.PnL
		}
		if tr.PnL.LessThan(stats.WorstPnL) {
			stats.WorstPnL = tr.PnL
		}
		switch {
		case tr.PnL.IsPositive():
			stats.Wins++
			sumWins = sumWins.Add(tr.PnL)
		case tr.PnL.IsNegative():
			stats.Losses++
			sumLosses = sumLosses.Add(tr.PnL.Abs())
		}
	}

	n := decimal.NewFromInt(int64(stats.Count))
	stats.MeanPnL = stats.NetProfit.Div(n)
	stats.MeanDuration = float64(duration) / float64(stats.Count)
	stats.Frequency = float64(stats.Count) / TradingDays
	stats.WinRate = float64(stats.Wins) / float64(stats.Count)
	if stats.Wins > 0 {
		stats.AvgWin = sumWins.Div(decimal.NewFromInt(int64(stats.Wins)))
	}
	if stats.Losses > 0 {
		stats.AvgLoss = sumLosses.Div(decimal.NewFromInt(int64(stats.Losses)))
	}
	switch {
	case stats.Losses > 0:
		stats.ProfitFactor = sumWins.Div(sumLosses).InexactFloat64()
	case stats.Wins > 0:
		stats.ProfitFactor = math.Inf(1)
	}
	stats.MaxConsecutiveLosses = maxConsecutiveLosses(snapshot)
	return stats
}

func maxConsecutiveLosses(trades []types.Trade) int {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExitTime.Before(trades[j].ExitTime)
	})

	maxLossStreak := 0
	currentStreak := 0
	for _, tr := range trades {
		if tr.PnL.IsNegative() {
			currentStreak++
			if currentStreak > maxLossStreak {
				maxLossStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxLossStreak
}

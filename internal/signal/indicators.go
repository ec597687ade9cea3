package signal

import (
	"fmt"

	"momentum/internal/history"
)

// Momentum is the trailing return prices[-1]/prices[-lookback] - 1.
func Momentum(prices []float64, lookback int) (float64, error) {
	if lookback < 1 || len(prices) < lookback {
		return 0, fmt.Errorf("momentum(%d): have %d prices: %w", lookback, len(prices), history.ErrInsufficientHistory)
	}
	last := prices[len(prices)-1]
	base := prices[len(prices)-lookback]
	return last/base - 1, nil
}

// SMA is the arithmetic mean of the last period closes.
func SMA(prices []float64, period int) (float64, error) {
	if period < 1 || len(prices) < period {
		return 0, fmt.Errorf("sma(%d): have %d prices: %w", period, len(prices), history.ErrInsufficientHistory)
	}
	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), nil
}

// RSI averages gains and losses over the last period deltas and returns
// 100 - 100/(1+RS). A window with no losses is 100.
func RSI(prices []float64, period int) (float64, error) {
	if period < 1 || len(prices) < period+1 {
		return 0, fmt.Errorf("rsi(%d): have %d prices: %w", period, len(prices), history.ErrInsufficientHistory)
	}
	window := prices[len(prices)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

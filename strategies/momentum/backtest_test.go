package momentum

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"momentum/internal/engine"
	"momentum/internal/risk"
	"momentum/internal/signal"
	"momentum/internal/store/sqlite"
	"momentum/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trending(inst string, n int, rate float64) []types.Candle {
	out := make([]types.Candle, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out = append(out, types.Candle{
			Instrument: inst,
			Close:      decimal.NewFromFloat(math.Round(price*100) / 100),
			Volume:     decimal.NewFromInt(5000),
			Interval:   types.Day,
			Timestamp:  t0.Add(time.Duration(i) * 24 * time.Hour),
		})
		// reverse halfway so the ranking changes and trades close
		if i == n/2 {
			rate = -rate
		}
		price *= 1 + rate
	}
	return out
}

func TestPaperBacktest_JournaledAndReconciled(t *testing.T) {
	cfg := engine.Config{
		Universe:        []string{"A", "B", "C", "D"},
		LookbackPeriod:  5,
		RebalancePeriod: 5,
		HoldCount:       1,
		Sizing:          engine.SizingEqualWeight,
		Signal: signal.Params{
			LookbackPeriod: 5, FastPeriod: 2, SlowPeriod: 4, RSIPeriod: 3,
			MomentumThreshold: 0.02, RSIOversold: 30, RSIOverbought: 70, UseMomentum: true,
		},
		Risk:           risk.Config{PositionSizeFraction: decimal.NewFromFloat(0.1)},
		InitialCapital: decimal.NewFromInt(100000),
	}
	candles := map[string][]types.Candle{
		"A": trending("A", 40, 0.01),
		"B": trending("B", 40, 0.002),
		"C": trending("C", 40, -0.002),
		"D": trending("D", 40, -0.01),
	}

	journal, err := sqlite.New(filepath.Join(t.TempDir(), "journal.db"), "paper")
	require.NoError(t, err)
	defer journal.Close()

	broker := NewBroker(cfg.InitialCapital, WithFeeModel(IBKRFixedFee))
	e, err := engine.NewEngine(cfg, broker, engine.WithRecorder(journal))
	require.NoError(t, err)

	res, err := engine.NewBacktester(e, broker, candles, 5).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, res.Cycles)
	require.NotEmpty(t, res.Trades, "the trend reversal closes positions")
	assert.Empty(t, res.Rejects)
	assert.True(t, e.Portfolio().Value().Equal(broker.PortfolioValue()), "engine %s broker %s", e.Portfolio().Value(), broker.PortfolioValue())
	assert.True(t, e.Portfolio().Cash().Equal(broker.Cash()))
	assert.True(t, e.Portfolio().TotalFees().IsPositive())

	ctx := context.Background()
	equity, err := journal.ListEquity(ctx, "paper")
	require.NoError(t, err)
	assert.Len(t, equity, len(res.Equity))

	trades, err := journal.ListTrades(ctx, "paper")
	require.NoError(t, err)
	require.Len(t, trades, len(res.Trades))
	assert.True(t, trades[0].PnL.Equal(res.Trades[0].PnL))

	orders, err := journal.CountOrders(ctx, "paper")
	require.NoError(t, err)
	assert.Equal(t, len(res.Orders), orders)
}

package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"momentum/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroker fills every target order in full at the last marked price
// when drained.
type mockBroker struct {
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
	last      map[string]decimal.Decimal
	pending   []types.Order
	marks     []types.Candle
	reject    map[string]bool
}

func newMockBroker(cash int64) *mockBroker {
	return &mockBroker{
		cash:      decimal.NewFromInt(cash),
		positions: make(map[string]decimal.Decimal),
		last:      make(map[string]decimal.Decimal),
	}
}

func (m *mockBroker) SendTargetOrder(_ context.Context, order types.Order) error {
	m.pending = append(m.pending, order)
	return nil
}

func (m *mockBroker) PortfolioValue() decimal.Decimal {
	value := m.cash
	for inst, qty := range m.positions {
		value = value.Add(qty.Mul(m.last[inst]))
	}
	return value
}

func (m *mockBroker) Mark(bar types.Candle) {
	m.marks = append(m.marks, bar)
	m.last[bar.Instrument] = bar.Close
}

func (m *mockBroker) Drain(ts time.Time) ([]types.Fill, []types.Reject) {
	var fills []types.Fill
	var rejects []types.Reject
	for _, o := range m.pending {
		if m.reject[o.Instrument] {
			rejects = append(rejects, types.Reject{OrderID: o.ID, Instrument: o.Instrument, Reason: "rejected", Time: ts})
			continue
		}
		delta := o.TargetQuantity.Sub(m.positions[o.Instrument])
		if delta.IsZero() {
			continue
		}
		price := m.last[o.Instrument]
		m.positions[o.Instrument] = o.TargetQuantity
		m.cash = m.cash.Sub(delta.Mul(price))
		fills = append(fills, types.Fill{OrderID: o.ID, Instrument: o.Instrument, Quantity: delta, Price: price, Time: ts})
	}
	m.pending = nil
	return fills, rejects
}

// trendingCandles produces n daily closes compounding at rate per bar.
func trendingCandles(inst string, n int, rate float64) []types.Candle {
	out := make([]types.Candle, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out = append(out, types.Candle{
			Instrument: inst,
			Close:      decimal.NewFromFloat(math.Round(price*100) / 100),
			Volume:     decimal.NewFromInt(1000),
			Interval:   types.Day,
			Timestamp:  testStart.Add(time.Duration(i) * 24 * time.Hour),
		})
		price *= 1 + rate
	}
	return out
}

func trendingUniverse(n int) map[string][]types.Candle {
	return map[string][]types.Candle{
		"A": trendingCandles("A", n, 0.01),
		"B": trendingCandles("B", n, 0.002),
		"C": trendingCandles("C", n, -0.002),
		"D": trendingCandles("D", n, -0.01),
	}
}

func backtestConfig() Config {
	cfg := testConfig("A", "B", "C", "D")
	cfg.LookbackPeriod = 5
	cfg.RebalancePeriod = 5
	cfg.Signal.LookbackPeriod = 5
	cfg.Risk.StopLossPct = decimal.Zero
	cfg.Risk.TakeProfitPct = decimal.Zero
	return cfg
}

func runBacktest(t *testing.T, cfg Config, broker *mockBroker, candles map[string][]types.Candle, warmup int) (*Engine, Result) {
	t.Helper()
	e, err := NewEngine(cfg, broker, WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	res, err := NewBacktester(e, broker, candles, warmup).Run(context.Background())
	require.NoError(t, err)
	return e, res
}

func TestBacktester_Run(t *testing.T) {
	broker := newMockBroker(100000)
	e, res := runBacktest(t, backtestConfig(), broker, trendingUniverse(30), 5)

	assert.Len(t, res.Equity, 25, "one equity point per replayed tick")
	assert.Equal(t, testStart.Add(5*24*time.Hour), res.Start)
	assert.Equal(t, 5, res.Cycles)
	assert.NotEmpty(t, res.Orders)

	assert.True(t, e.Portfolio().Quantity("A").IsPositive())
	assert.True(t, e.Portfolio().Quantity("D").IsNegative())
	assert.True(t, e.Portfolio().Quantity("B").IsZero())
	assert.True(t, e.Portfolio().Quantity("C").IsZero())

	// engine and broker books agree
	assert.True(t, broker.PortfolioValue().Sub(res.FinalValue).Abs().LessThan(dec("0.000001")),
		"broker %s engine %s", broker.PortfolioValue(), res.FinalValue)
	assert.True(t, res.FinalValue.GreaterThan(decimal.NewFromInt(100000)))
}

func TestBacktester_Deterministic(t *testing.T) {
	_, first := runBacktest(t, backtestConfig(), newMockBroker(100000), trendingUniverse(40), 5)
	_, second := runBacktest(t, backtestConfig(), newMockBroker(100000), trendingUniverse(40), 5)

	require.Equal(t, len(first.Orders), len(second.Orders))
	for i := range first.Orders {
		assert.Equal(t, first.Orders[i].Instrument, second.Orders[i].Instrument)
		assert.True(t, first.Orders[i].TargetQuantity.Equal(second.Orders[i].TargetQuantity))
	}
	assert.True(t, first.FinalValue.Equal(second.FinalValue))
}

func TestBacktester_RejectsAreNotRetried(t *testing.T) {
	broker := newMockBroker(100000)
	broker.reject = map[string]bool{"D": true}
	e, res := runBacktest(t, backtestConfig(), broker, trendingUniverse(30), 5)

	assert.NotEmpty(t, res.Rejects)
	assert.True(t, e.Portfolio().Quantity("D").IsZero())
	for _, rej := range res.Rejects {
		assert.Equal(t, "D", rej.Instrument)
	}
	// one order per cycle for D, no retries in between
	dOrders := 0
	for _, o := range res.Orders {
		if o.Instrument == "D" {
			dOrders++
		}
	}
	assert.Equal(t, res.Cycles, dOrders)
}

func TestBacktester_RunErrors(t *testing.T) {
	tests := []struct {
		name    string
		candles map[string][]types.Candle
		warmup  int
	}{
		{"no reference candles", map[string][]types.Candle{"B": trendingCandles("B", 10, 0)}, 0},
		{"warmup consumes everything", trendingUniverse(5), 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			broker := newMockBroker(1000)
			e, err := NewEngine(backtestConfig(), broker)
			require.NoError(t, err)
			_, err = NewBacktester(e, broker, tc.candles, tc.warmup).Run(context.Background())
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("got %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestBacktester_CanceledContext(t *testing.T) {
	broker := newMockBroker(100000)
	e, err := NewEngine(backtestConfig(), broker)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewBacktester(e, broker, trendingUniverse(10), 2).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBacktest_SplitOrdersReferenceLast(t *testing.T) {
	broker := newMockBroker(1000)
	cfg := backtestConfig()
	cfg.ReferenceInstrument = "B"
	e, err := NewEngine(cfg, broker)
	require.NoError(t, err)

	b := NewBacktester(e, broker, trendingUniverse(4), 0)
	cutoff := testStart.Add(2 * 24 * time.Hour)
	bulk, replay := b.split(cutoff)

	for _, inst := range []string{"A", "B", "C", "D"} {
		assert.Len(t, bulk[inst], 2)
	}
	groups := groupByTime(replay)
	require.Len(t, groups, 2)
	for _, g := range groups {
		got := make([]string, 0, len(g))
		for _, c := range g {
			got = append(got, c.Instrument)
		}
		assert.Equal(t, []string{"A", "C", "D", "B"}, got)
	}
}

func TestGroupByTime(t *testing.T) {
	t0 := testStart
	candles := []types.Candle{
		{Instrument: "A", Timestamp: t0},
		{Instrument: "B", Timestamp: t0},
		{Instrument: "A", Timestamp: t0.Add(time.Minute)},
		{Instrument: "A", Timestamp: t0.Add(2 * time.Minute)},
		{Instrument: "B", Timestamp: t0.Add(2 * time.Minute)},
	}
	groups := groupByTime(candles)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
	assert.Len(t, groups[2], 2)
	assert.Empty(t, groupByTime(nil))
}

func TestEngine_Stream(t *testing.T) {
	broker := newMockBroker(100000)
	e, err := NewEngine(backtestConfig(), broker)
	require.NoError(t, err)

	ticks := make(chan types.Candle)
	done := make(chan error, 1)
	go func() { done <- e.Stream(context.Background(), ticks, broker) }()

	universe := trendingUniverse(12)
	for i := 0; i < 12; i++ {
		for _, inst := range []string{"B", "C", "D", "A"} {
			ticks <- universe[inst][i]
		}
	}
	ticks <- types.Candle{Instrument: "ZZZ", Close: dec("1"), Timestamp: testStart}
	close(ticks)
	require.NoError(t, <-done)

	assert.Equal(t, 12, e.Bar())
	assert.Len(t, e.Portfolio().Equity(), 12)
	assert.True(t, e.Portfolio().Quantity("A").IsPositive())
	assert.Len(t, broker.marks, 49)
}

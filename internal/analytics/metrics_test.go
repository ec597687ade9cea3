package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenario = []float64{0.01, -0.02, 0.03, -0.01, 0.02}

func TestCompute_Scenario(t *testing.T) {
	m, err := Compute(scenario, nil)
	require.NoError(t, err)

	growth := 1.01 * 0.98 * 1.03 * 0.99 * 1.02
	assert.InDelta(t, 0.0294850412, m.TotalReturn, 1e-9)
	assert.InDelta(t, math.Pow(growth, 252.0/5)-1, m.AnnualizedReturn, 1e-9)
	assert.Equal(t, 0.6, m.WinRate)
	assert.InDelta(t, 2.0, m.ProfitFactor, 1e-12)
	assert.InDelta(t, 0.02, m.AvgWin, 1e-12)
	assert.InDelta(t, -0.015, m.AvgLoss, 1e-12)
	assert.InDelta(t, 4.0/3.0, m.WinLossRatio, 1e-12)

	sd := math.Sqrt(0.00172 / 4)
	assert.InDelta(t, sd*math.Sqrt(252), m.Volatility, 1e-9)
	assert.InDelta(t, 0.006*252/(sd*math.Sqrt(252)), m.SharpeRatio, 1e-9)

	assert.InDelta(t, -0.02, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, m.AnnualizedReturn/0.02, m.CalmarRatio, 1e-9)
	assert.False(t, m.HasBenchmark)
	assert.Equal(t, 5, m.Periods)
}

func TestCompute_Errors(t *testing.T) {
	_, err := Compute(nil, nil)
	assert.ErrorIs(t, err, ErrNoReturns)

	_, err = Compute(scenario, []float64{0.01, 0.02})
	assert.ErrorIs(t, err, ErrBenchmarkLength)
}

func TestCompute_Benchmark(t *testing.T) {
	bench := make([]float64, len(scenario))
	for i, r := range scenario {
		bench[i] = 2 * r
	}
	m, err := Compute(scenario, bench)
	require.NoError(t, err)

	assert.True(t, m.HasBenchmark)
	assert.InDelta(t, 0.5, m.Beta, 1e-12)
	assert.InDelta(t, m.AnnualizedReturn-0.5*AnnualizedReturn(bench), m.Alpha, 1e-12)

	flat := []float64{0, 0, 0, 0, 0}
	m, err = Compute(scenario, flat)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Beta)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	in := append([]float64(nil), scenario...)
	_, err := Compute(in, nil)
	require.NoError(t, err)
	assert.Equal(t, scenario, in)
}

func TestCompute_EdgeCases(t *testing.T) {
	tests := []struct {
		name        string
		returns     []float64
		wantSharpe  float64
		wantVol     float64
		wantMDD     float64
		wantPFInf   bool
		wantCalmar  float64
		wantWinRate float64
		wantWinLoss float64
	}{
		{
			name:        "zero variance",
			returns:     []float64{0.25, 0.25, 0.25},
			wantPFInf:   true,
			wantWinRate: 1,
		},
		{
			name:      "single period",
			returns:   []float64{-0.05},
			wantMDD:   0,
			wantPFInf: false,
		},
		{
			name:      "all flat",
			returns:   []float64{0, 0, 0, 0},
			wantPFInf: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Compute(tc.returns, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSharpe, m.SharpeRatio)
			assert.Equal(t, tc.wantVol, m.Volatility)
			assert.Equal(t, tc.wantMDD, m.MaxDrawdown)
			assert.Equal(t, tc.wantPFInf, math.IsInf(m.ProfitFactor, 1))
			assert.Equal(t, tc.wantCalmar, m.CalmarRatio)
			assert.Equal(t, tc.wantWinRate, m.WinRate)
			assert.Equal(t, tc.wantWinLoss, m.WinLossRatio)
		})
	}
}

func TestAnnualizedReturn_TotalLoss(t *testing.T) {
	assert.Equal(t, -1.0, AnnualizedReturn([]float64{0.1, -1, 0.2}))
	assert.Equal(t, 0.0, AnnualizedReturn(nil))
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name    string
		returns []float64
		zero    bool
	}{
		{"monotonic rise", []float64{0.01, 0.02, 0, 0.03}, true},
		{"flat", []float64{0, 0, 0}, true},
		{"single dip", []float64{0.05, -0.01, 0.02}, false},
		{"steady decline", []float64{0.01, -0.01, -0.01, -0.01}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mdd := MaxDrawdown(tc.returns)
			assert.LessOrEqual(t, mdd, 0.0)
			assert.Equal(t, tc.zero, mdd == 0)
			for _, dd := range DrawdownCurve(tc.returns) {
				assert.LessOrEqual(t, dd, 0.0)
			}
		})
	}
}

func TestCumulativeAndDrawdownCurve(t *testing.T) {
	cum := CumulativeReturns(scenario)
	require.Len(t, cum, 5)
	assert.InDelta(t, 1.01, cum[0], 1e-12)
	assert.InDelta(t, 1.0294850412, cum[4], 1e-9)

	dd := DrawdownCurve(scenario)
	assert.Equal(t, 0.0, dd[0])
	assert.InDelta(t, -0.02, dd[1], 1e-12)
	assert.Equal(t, 0.0, dd[2])
	assert.InDelta(t, 1.00929906/1.019494-1, dd[3], 1e-9)
	assert.Equal(t, 0.0, dd[4])
}

func TestRollingSharpe(t *testing.T) {
	out := RollingSharpe(scenario, 3)
	require.Len(t, out, 3)
	assert.InDelta(t, SharpeRatio(scenario[0:3]), out[0], 1e-12)
	assert.InDelta(t, SharpeRatio(scenario[2:5]), out[2], 1e-12)

	assert.Nil(t, RollingSharpe(scenario, 6))
	assert.Nil(t, RollingSharpe(scenario, 1))
	assert.Equal(t, []float64{0, 0}, RollingSharpe([]float64{0.25, 0.25, 0.25}, 2))
}

func TestParameterGrid(t *testing.T) {
	grid := ParameterGrid([]float64{0.01, 0.02}, []int{5, 10, 20}, []int{15, 20})
	require.Len(t, grid, 8)
	for _, p := range grid {
		assert.Less(t, p.FastPeriod, p.SlowPeriod)
	}
	assert.Equal(t, GridPoint{MomentumThreshold: 0.01, FastPeriod: 5, SlowPeriod: 15}, grid[0])
	assert.Equal(t, GridPoint{MomentumThreshold: 0.02, FastPeriod: 10, SlowPeriod: 20}, grid[7])
	assert.Empty(t, ParameterGrid([]float64{0.01}, []int{30}, []int{20}))
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 0.6*0.1+0.4*1.5, Score(Metrics{AnnualizedReturn: 0.1, SharpeRatio: 1.5}), 1e-12)
}

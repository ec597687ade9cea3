package analytics

// GridPoint is one parameter combination of an optimization sweep.
type GridPoint struct {
	MomentumThreshold float64
	FastPeriod        int
	SlowPeriod        int
}

// ParameterGrid enumerates every threshold/fast/slow combination with
// fast < slow, in input order.
func ParameterGrid(thresholds []float64, fast, slow []int) []GridPoint {
	var grid []GridPoint
	for _, th := range thresholds {
		for _, f := range fast {
			for _, s := range slow {
				if f >= s {
					continue
				}
				grid = append(grid, GridPoint{MomentumThreshold: th, FastPeriod: f, SlowPeriod: s})
			}
		}
	}
	return grid
}

// Score ranks a sweep result: 60% annual return, 40% Sharpe ratio.
func Score(m Metrics) float64 {
	return m.AnnualizedReturn*0.6 + m.SharpeRatio*0.4
}

package main

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"text/tabwriter"

	"momentum/internal/analytics"
	"momentum/internal/engine"
	"momentum/strategies/momentum"
	"momentum/types"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type sweepResult struct {
	Point   analytics.GridPoint
	Metrics analytics.Metrics
	Score   float64
}

func newOptimizeCmd(a *app) *cobra.Command {
	var (
		thresholds []float64
		fast       []int
		slow       []int
		top        int
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Sweep signal parameters and rank them by return and Sharpe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			base, err := a.cfg.ToEngineConfig()
			if err != nil {
				return err
			}
			window, err := a.cfg.Window()
			if err != nil {
				return err
			}
			fees, err := momentum.ParseFeeModel(a.cfg.Backtest.FeeModel)
			if err != nil {
				return err
			}
			candles, err := a.loadCandles(ctx)
			if err != nil {
				return err
			}

			grid := analytics.ParameterGrid(thresholds, fast, slow)
			if len(grid) == 0 {
				return fmt.Errorf("empty parameter grid")
			}
			a.log.Info().Int("combinations", len(grid)).Msg("sweep started")

			results, err := sweep(ctx, base, grid, candles, window.Warmup, fees)
			if err != nil {
				return err
			}
			printSweep(cmd, results, top)
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&thresholds, "thresholds", []float64{0.01, 0.02, 0.03}, "momentum thresholds")
	cmd.Flags().IntSliceVar(&fast, "fast", []int{5, 10, 15}, "fast SMA periods")
	cmd.Flags().IntSliceVar(&slow, "slow", []int{20, 30, 50}, "slow SMA periods")
	cmd.Flags().IntVar(&top, "top", 10, "number of results to print")
	return cmd
}

// sweep runs one backtest per grid point. Points whose configuration is
// invalid or that produce no returns are dropped.
func sweep(ctx context.Context, base engine.Config, grid []analytics.GridPoint, candles map[string][]types.Candle, warmup int, fees momentum.FeeModel) ([]sweepResult, error) {
	results := make([]*sweepResult, len(grid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, p := range grid {
		g.Go(func() error {
			cfg := base
			cfg.Universe = append([]string(nil), base.Universe...)
			cfg.Signal.MomentumThreshold = p.MomentumThreshold
			cfg.Signal.FastPeriod = p.FastPeriod
			cfg.Signal.SlowPeriod = p.SlowPeriod
			cfg.Signal.UseSMACrossover = true
			cfg.ConfirmEntries = true

			broker := momentum.NewBroker(cfg.InitialCapital, momentum.WithFeeModel(fees))
			eng, err := engine.NewEngine(cfg, broker)
			if err != nil {
				return nil
			}
			res, err := engine.NewBacktester(eng, broker, candles, warmup).Run(gctx)
			if err != nil {
				return err
			}
			m, err := analytics.Compute(analytics.ReturnsFromEquity(res.Equity), nil)
			if err != nil {
				return nil
			}
			results[i] = &sweepResult{Point: p, Metrics: m, Score: analytics.Score(m)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]sweepResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func printSweep(cmd *cobra.Command, results []sweepResult, top int) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "threshold\tfast\tslow\tann. return\tsharpe\tmax dd\tscore")
	for i, r := range results {
		if top > 0 && i >= top {
			break
		}
		fmt.Fprintf(tw, "%.3f\t%d\t%d\t%.2f%%\t%.3f\t%.2f%%\t%.4f\n",
			r.Point.MomentumThreshold, r.Point.FastPeriod, r.Point.SlowPeriod,
			r.Metrics.AnnualizedReturn*100, r.Metrics.SharpeRatio, r.Metrics.MaxDrawdown*100, r.Score)
	}
	_ = tw.Flush()
}

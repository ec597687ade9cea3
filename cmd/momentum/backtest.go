package main

import (
	"context"
	"fmt"
	"os"

	"momentum/internal/analytics"
	"momentum/internal/engine"
	"momentum/internal/repository"
	"momentum/strategies/momentum"
	"momentum/types"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newBacktestCmd(a *app) *cobra.Command {
	var noProgress bool
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay stored candles through the strategy and print a report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			candles, err := a.loadCandles(ctx)
			if err != nil {
				return err
			}
			run := "bt-" + uuid.NewString()
			res, report, err := a.backtest(ctx, run, candles, !noProgress)
			if err != nil {
				return err
			}
			a.log.Info().
				Str("run", run).
				Int("cycles", res.Cycles).
				Int("orders", len(res.Orders)).
				Int("rejects", len(res.Rejects)).
				Str("final_value", res.FinalValue.StringFixed(2)).
				Msg("backtest finished")
			if err := analytics.PrintReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return a.writeCSVs(res.Equity, res.Trades)
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")
	return cmd
}

// loadCandles fetches the universe and benchmark for the configured window.
func (a *app) loadCandles(ctx context.Context) (map[string][]types.Candle, error) {
	window, err := a.cfg.Window()
	if err != nil {
		return nil, err
	}
	if a.cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}
	db, err := repository.NewDatabase(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	candles, err := db.LoadUniverse(ctx, a.cfg.Instruments(), window.Interval, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	a.log.Info().Int("instruments", len(candles)).Time("start", window.Start).Time("end", window.End).Msg("candles loaded")
	return candles, nil
}

func (a *app) backtest(ctx context.Context, run string, candles map[string][]types.Candle, progress bool) (engine.Result, *analytics.Report, error) {
	ecfg, err := a.cfg.ToEngineConfig()
	if err != nil {
		return engine.Result{}, nil, err
	}
	window, err := a.cfg.Window()
	if err != nil {
		return engine.Result{}, nil, err
	}
	fees, err := momentum.ParseFeeModel(a.cfg.Backtest.FeeModel)
	if err != nil {
		return engine.Result{}, nil, err
	}

	_, recorders, closeRecorders, err := a.openRecorders(ctx, run)
	if err != nil {
		return engine.Result{}, nil, err
	}
	defer closeRecorders()

	broker := momentum.NewBroker(ecfg.InitialCapital, momentum.WithFeeModel(fees))
	eng, err := engine.NewEngine(ecfg, broker,
		engine.WithLogger(a.log.With().Str("run", run).Logger()),
		engine.WithRecorder(recorders),
	)
	if err != nil {
		return engine.Result{}, nil, err
	}

	bt := engine.NewBacktester(eng, broker, candles, window.Warmup)
	if progress {
		bt = bt.WithProgress(os.Stderr)
	}
	res, err := bt.Run(ctx)
	if err != nil {
		return engine.Result{}, nil, err
	}

	bench := benchmarkReturns(res.Equity, candles[a.cfg.Backtest.Benchmark])
	if a.cfg.Backtest.Benchmark != "" && bench == nil {
		a.log.Warn().Str("benchmark", a.cfg.Backtest.Benchmark).Msg("benchmark bars do not line up with the equity curve, skipping beta")
	}
	report, err := analytics.GenerateReport(res.Equity, res.Trades, bench, a.cfg.Report.RollingWindow)
	if err != nil {
		return engine.Result{}, nil, err
	}
	return res, report, nil
}

func (a *app) writeCSVs(equity []types.EquitySnapshot, trades []types.Trade) error {
	if path := a.cfg.Report.TradesCSV; path != "" {
		if err := analytics.WriteTradesCSVFile(path, trades); err != nil {
			return err
		}
		a.log.Info().Str("path", path).Int("trades", len(trades)).Msg("trades written")
	}
	if path := a.cfg.Report.EquityCSV; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create equity file: %w", err)
		}
		defer f.Close()
		if err := analytics.WriteEquityCSV(f, equity); err != nil {
			return err
		}
		a.log.Info().Str("path", path).Int("points", len(equity)).Msg("equity written")
	}
	return nil
}

// benchmarkReturns aligns the benchmark's closes with the equity timestamps.
// It returns nil unless every equity point has a positive benchmark close.
func benchmarkReturns(equity []types.EquitySnapshot, bars []types.Candle) []float64 {
	if len(equity) < 2 || len(bars) == 0 {
		return nil
	}
	closes := make(map[int64]float64, len(bars))
	for _, b := range bars {
		closes[b.Timestamp.UnixNano()] = b.Close.InexactFloat64()
	}
	out := make([]float64, 0, len(equity)-1)
	prev, ok := closes[equity[0].Time.UnixNano()]
	if !ok || prev <= 0 {
		return nil
	}
	for _, snap := range equity[1:] {
		c, ok := closes[snap.Time.UnixNano()]
		if !ok || c <= 0 {
			return nil
		}
		out = append(out, c/prev-1)
		prev = c
	}
	return out
}

package main

import (
	"context"
	"errors"
	"time"

	"momentum/internal/engine"
	"momentum/internal/feed"
	"momentum/internal/repository"
	"momentum/strategies/momentum"
	"momentum/types"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newLiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Run the strategy on the websocket feed against the paper broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.Feed.URL == "" {
				return errors.New("feed.url is required")
			}
			ecfg, err := a.cfg.ToEngineConfig()
			if err != nil {
				return err
			}
			fees, err := momentum.ParseFeeModel(a.cfg.Backtest.FeeModel)
			if err != nil {
				return err
			}

			run := "live-" + uuid.NewString()
			_, recorders, closeRecorders, err := a.openRecorders(ctx, run)
			if err != nil {
				return err
			}
			defer closeRecorders()

			broker := momentum.NewBroker(ecfg.InitialCapital, momentum.WithFeeModel(fees))
			eng, err := engine.NewEngine(ecfg, broker,
				engine.WithLogger(a.log.With().Str("run", run).Logger()),
				engine.WithRecorder(recorders),
			)
			if err != nil {
				return err
			}
			if err := a.warmup(ctx, eng); err != nil {
				a.log.Warn().Err(err).Msg("warmup history unavailable, accumulating from the feed")
			}

			base, maxDelay := a.cfg.ReconnectDelays()
			f, err := feed.New(a.cfg.Feed.URL, ecfg.Universe,
				feed.WithLogger(a.log),
				feed.WithBackoff(base, maxDelay),
			)
			if err != nil {
				return err
			}

			a.log.Info().Str("run", run).Strs("universe", ecfg.Universe).Msg("live trading started")
			err = eng.Stream(ctx, f.Subscribe(ctx), broker)
			a.log.Info().
				Str("run", run).
				Int("cycles", eng.Cycles()).
				Str("value", eng.Portfolio().Value().StringFixed(2)).
				Msg("live trading stopped")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// warmup seeds the engine with the most recent stored bars.
func (a *app) warmup(ctx context.Context, eng *engine.Engine) error {
	if a.cfg.Database.URL == "" {
		return errors.New("database.url not set")
	}
	iv, err := types.ParseInterval(a.cfg.Backtest.Interval)
	if err != nil {
		return err
	}
	db, err := repository.NewDatabase(ctx, a.cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	end := time.Now().UTC()
	// calendar gaps (weekends, holidays) need more than lookback bars of wall time
	start := end.Add(-3 * time.Duration(a.cfg.Strategy.LookbackPeriod) * types.IntervalToTime[iv])
	bars, err := db.LoadUniverse(ctx, eng.Config().Universe, iv, start, end)
	if err != nil {
		return err
	}
	return eng.OnBulkHistory(ctx, bars)
}

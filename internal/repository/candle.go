package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"momentum/types"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

var bucketToInterval = map[types.Interval]string{
	types.OneMinute:      "1 minute",
	types.FiveMinutes:    "5 minutes",
	types.FifteenMinutes: "15 minutes",
	types.ThirtyMinutes:  "30 minutes",
	types.Hour:           "1 hour",
	types.FourHours:      "4 hours",
	types.Day:            "1 day",
	types.Week:           "1 week",
}

// GetCandles returns the bars of one asset in [start, end), oldest first.
func (db *Database) GetCandles(ctx context.Context, asset types.Asset, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	bucket, ok := bucketToInterval[interval]
	if !ok {
		return nil, fmt.Errorf("%s: %w", interval, ErrIntervalNotSupported)
	}
	args := aggregatesParams{
		TimeBucket: bucket,
		AssetID:    int32(asset.Id),
		Starttime:  start,
		Endtime:    end,
	}
	candles, err := db.candles.GetAggregates(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", asset.Symbol, ErrNoCandles)
		}
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", asset.Symbol, ErrNoCandles)
	}
	return convertCandles(candles, interval, asset.Symbol), nil
}

// LoadUniverse resolves every symbol and fetches its candles concurrently.
// The first failure cancels the remaining loads.
func (db *Database) LoadUniverse(ctx context.Context, symbols []string, interval types.Interval, start, end time.Time) (map[string][]types.Candle, error) {
	results := make([][]types.Candle, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range symbols {
		g.Go(func() error {
			asset, err := db.GetAssetBySymbol(gctx, symbol)
			if err != nil {
				return err
			}
			candles, err := db.GetCandles(gctx, *asset, interval, start, end)
			if err != nil {
				return err
			}
			results[i] = candles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]types.Candle, len(symbols))
	for i, symbol := range symbols {
		out[symbol] = results[i]
	}
	return out, nil
}

func convertCandles(rows []aggregateRow, interval types.Interval, symbol string) []types.Candle {
	candles := make([]types.Candle, 0, len(rows))
	for _, dao := range rows {
		candles = append(candles, types.Candle{
			Instrument: symbol,
			Open:       dao.Open,
			Close:      dao.Close,
			High:       dao.High,
			Low:        dao.Low,
			Volume:     dao.Volume,
			Interval:   interval,
			Timestamp:  dao.Bucket,
		})
	}
	return candles
}

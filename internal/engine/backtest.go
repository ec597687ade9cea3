package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"momentum/types"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
)

// Backtester replays stored candles through an Engine and a simulated Broker.
type Backtester struct {
	engine  *Engine
	broker  Broker
	candles map[string][]types.Candle
	// warmup is the number of reference bars handed over as bulk history
	// before the replay starts.
	warmup   int
	progress io.Writer
}

type Result struct {
	Start      time.Time
	End        time.Time
	Equity     []types.EquitySnapshot
	Trades     []types.Trade
	Orders     []types.Order
	Rejects    []types.Reject
	Cycles     int
	FinalValue decimal.Decimal
}

func NewBacktester(engine *Engine, broker Broker, candles map[string][]types.Candle, warmup int) *Backtester {
	return &Backtester{
		engine:   engine,
		broker:   broker,
		candles:  candles,
		warmup:   warmup,
		progress: io.Discard,
	}
}

// WithProgress draws the progress bar on w.
func (b *Backtester) WithProgress(w io.Writer) *Backtester {
	if w != nil {
		b.progress = w
	}
	return b
}

func (b *Backtester) Run(ctx context.Context) (Result, error) {
	ref := b.engine.Reference()
	refCandles := b.candles[ref]
	if len(refCandles) == 0 {
		return Result{}, fmt.Errorf("%w: no candles for reference instrument %s", ErrInvalidConfiguration, ref)
	}
	warmup := b.warmup
	if warmup < 0 {
		warmup = 0
	}
	if warmup >= len(refCandles) {
		return Result{}, fmt.Errorf("%w: warmup %d leaves no bars to replay (%s has %d)",
			ErrInvalidConfiguration, warmup, ref, len(refCandles))
	}

	var cutoff time.Time
	if warmup > 0 {
		cutoff = refCandles[warmup].Timestamp
	}
	bulk, replay := b.split(cutoff)
	if len(bulk) > 0 {
		if err := b.engine.OnBulkHistory(ctx, bulk); err != nil {
			return Result{}, err
		}
	}

	groups := groupByTime(replay)
	bar := initProgressBar(len(groups), b.progress)
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		ts := group[0].Timestamp
		for _, candle := range group {
			b.broker.Mark(candle)
			if err := b.engine.OnTick(ctx, candle); err != nil {
				if errors.Is(err, ErrInvalidBar) {
					b.engine.log.Warn().Err(err).Msg("skipping bar")
					continue
				}
				return Result{}, err
			}
		}
		if err := b.settle(ctx, ts); err != nil {
			return Result{}, err
		}
		b.engine.RecordEquity(ctx, ts)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	res := Result{
		Start:      groups[0][0].Timestamp,
		End:        groups[len(groups)-1][0].Timestamp,
		Equity:     b.engine.Portfolio().Equity(),
		Trades:     b.engine.Portfolio().Trades(),
		Orders:     b.engine.Orders(),
		Rejects:    b.engine.Rejects(),
		Cycles:     b.engine.Cycles(),
		FinalValue: b.engine.Portfolio().Value(),
	}
	return res, nil
}

// settle hands the broker's executions for ts back to the engine.
func (b *Backtester) settle(ctx context.Context, ts time.Time) error {
	return settle(ctx, b.engine, b.broker, ts)
}

func settle(ctx context.Context, e *Engine, broker Broker, ts time.Time) error {
	fills, rejects := broker.Drain(ts)
	for _, fill := range fills {
		if err := e.OnFill(ctx, fill); err != nil {
			return err
		}
	}
	for _, rej := range rejects {
		e.OnReject(ctx, rej)
	}
	return nil
}

// split separates candles before cutoff (bulk history) from the rest.
func (b *Backtester) split(cutoff time.Time) (map[string][]types.Candle, []types.Candle) {
	bulk := make(map[string][]types.Candle)
	var replay []types.Candle
	for _, inst := range b.engine.Config().Universe {
		for _, c := range b.candles[inst] {
			c.Instrument = inst
			if !cutoff.IsZero() && c.Timestamp.Before(cutoff) {
				bulk[inst] = append(bulk[inst], c)
				continue
			}
			replay = append(replay, c)
		}
	}
	// the reference instrument goes last within a timestamp so a cycle it
	// triggers sees every close of that tick
	ref := b.engine.Reference()
	sort.SliceStable(replay, func(i, j int) bool {
		ti, tj := replay[i].Timestamp, replay[j].Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return replay[j].Instrument == ref && replay[i].Instrument != ref
	})
	return bulk, replay
}

// groupByTime splits time-ordered candles into ticks sharing a timestamp.
func groupByTime(candles []types.Candle) [][]types.Candle {
	var groups [][]types.Candle
	for i := 0; i < len(candles); {
		j := i + 1
		for j < len(candles) && candles[j].Timestamp.Equal(candles[i].Timestamp) {
			j++
		}
		groups = append(groups, candles[i:j])
		i = j
	}
	return groups
}

func initProgressBar(maxTicks int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

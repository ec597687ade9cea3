package engine

import (
	"context"
	"fmt"
	"time"

	"momentum/internal/history"
	"momentum/internal/risk"
	"momentum/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Engine is the event handler the market platform drives. Every inbound
// event runs to completion before the next one is accepted, so the
// portfolio never exposes a half-applied rebalance.
type Engine struct {
	cfg       Config
	reference string
	index     map[string]int

	platform  Platform
	risk      *risk.Manager
	history   *history.Store
	portfolio *Portfolio
	daily     *risk.DailyLossGuard
	drawdown  *risk.DrawdownGuard
	recorder  Recorder
	log       zerolog.Logger
	newID     func() string

	state     State
	counter   int
	bar       int
	now       time.Time
	lastPrice map[string]decimal.Decimal
	lastVol   map[string]decimal.Decimal
	targets   map[string]decimal.Decimal
	// pendingExits holds the order id of an exit sent but not yet filled or rejected.
	pendingExits map[string]string

	lastCycle Cycle
	cycles    int
	orders    []types.Order
	rejects   []types.Reject
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine validates cfg and returns an engine in the Accumulating state.
func NewEngine(cfg Config, platform Platform, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if platform == nil {
		return nil, fmt.Errorf("%w: nil platform", ErrInvalidConfiguration)
	}

	index := make(map[string]int, len(cfg.Universe))
	for i, inst := range cfg.Universe {
		index[inst] = i
	}
	capacity := cfg.LookbackPeriod
	if need := cfg.Signal.Required(); need > capacity {
		capacity = need
	}

	e := &Engine{
		cfg:          cfg,
		reference:    cfg.reference(),
		index:        index,
		platform:     platform,
		risk:         risk.NewManager(cfg.Risk),
		history:      history.NewStore(cfg.Universe, capacity*2),
		portfolio:    NewPortfolio(cfg.InitialCapital),
		daily:        risk.NewDailyLossGuard(cfg.Risk.DailyLossLimit),
		drawdown:     risk.NewDrawdownGuard(cfg.Risk.MaxDrawdown),
		log:          zerolog.Nop(),
		newID:        uuid.NewString,
		state:        StateAccumulating,
		lastPrice:    make(map[string]decimal.Decimal, len(cfg.Universe)),
		lastVol:      make(map[string]decimal.Decimal, len(cfg.Universe)),
		targets:      make(map[string]decimal.Decimal, len(cfg.Universe)),
		pendingExits: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() Config          { return e.cfg }
func (e *Engine) State() State            { return e.state }
func (e *Engine) Portfolio() *Portfolio   { return e.portfolio }
func (e *Engine) History() *history.Store { return e.history }
func (e *Engine) LastCycle() Cycle        { return e.lastCycle }
func (e *Engine) Bar() int                { return e.bar }
func (e *Engine) Cycles() int             { return e.cycles }
func (e *Engine) Orders() []types.Order   { return append([]types.Order(nil), e.orders...) }
func (e *Engine) Rejects() []types.Reject { return append([]types.Reject(nil), e.rejects...) }
func (e *Engine) Reference() string       { return e.reference }

// Target is the last target quantity sent for inst.
func (e *Engine) Target(inst string) decimal.Decimal {
	return e.targets[inst]
}

// OnBulkHistory preloads closes. Bars for instruments outside the universe
// are skipped and reported once the known ones are loaded.
func (e *Engine) OnBulkHistory(_ context.Context, bars map[string][]types.Candle) error {
	var unknown []string
	for _, inst := range e.cfg.Universe {
		for _, bar := range bars[inst] {
			if !bar.Close.IsPositive() {
				e.log.Warn().Str("instrument", inst).Time("ts", bar.Timestamp).Msg("skipping non-positive close in bulk history")
				continue
			}
			e.history.Append(inst, bar.Close.InexactFloat64(), bar.Volume.InexactFloat64())
			e.lastPrice[inst] = bar.Close
			e.lastVol[inst] = bar.Volume
		}
	}
	for inst := range bars {
		if _, ok := e.index[inst]; !ok {
			unknown = append(unknown, inst)
		}
	}
	e.log.Info().Int("instruments", len(bars)).Msg("bulk history loaded")
	if len(unknown) > 0 {
		return fmt.Errorf("bulk history %v: %w", unknown, ErrUnknownInstrument)
	}
	return nil
}

// OnTick appends the bar, checks the instrument's exit thresholds and, when
// the reference instrument completes a rebalance period, runs a cycle.
func (e *Engine) OnTick(ctx context.Context, bar types.Candle) error {
	if _, ok := e.index[bar.Instrument]; !ok {
		return fmt.Errorf("tick %s: %w", bar.Instrument, ErrUnknownInstrument)
	}
	if !bar.Close.IsPositive() || bar.Volume.IsNegative() {
		return fmt.Errorf("%w: %s close=%s volume=%s", ErrInvalidBar, bar.Instrument, bar.Close, bar.Volume)
	}

	e.history.Append(bar.Instrument, bar.Close.InexactFloat64(), bar.Volume.InexactFloat64())
	e.lastPrice[bar.Instrument] = bar.Close
	e.lastVol[bar.Instrument] = bar.Volume
	e.portfolio.Mark(bar.Instrument, bar.Close)
	if bar.Timestamp.After(e.now) {
		e.now = bar.Timestamp
	}

	value := e.portfolio.Value()
	e.daily.Update(bar.Timestamp, value)
	e.drawdown.Update(value)

	e.checkExit(ctx, bar)

	if bar.Instrument != e.reference {
		return nil
	}
	e.bar++
	e.counter++
	if e.counter < e.cfg.RebalancePeriod {
		return nil
	}
	e.counter = 0
	e.lastCycle = e.rebalance(ctx)
	e.cycles++
	return nil
}

func (e *Engine) checkExit(ctx context.Context, bar types.Candle) {
	if _, pending := e.pendingExits[bar.Instrument]; pending {
		return
	}
	pos, ok := e.portfolio.Position(bar.Instrument)
	if !ok {
		return
	}
	reason := e.risk.CheckExit(pos, bar.Close)
	if reason == risk.ExitNone {
		return
	}
	e.log.Info().
		Str("instrument", bar.Instrument).
		Str("reason", string(reason)).
		Str("entry", pos.EntryPrice.String()).
		Str("price", bar.Close.String()).
		Msg("exit triggered")
	order := types.NewTargetOrder(e.newID(), bar.Instrument, decimal.Zero, string(reason), bar.Timestamp)
	if e.emit(ctx, order) {
		e.pendingExits[bar.Instrument] = order.ID
	}
}

// OnFill books an execution reported by the platform.
func (e *Engine) OnFill(ctx context.Context, fill types.Fill) error {
	if _, ok := e.index[fill.Instrument]; !ok {
		return fmt.Errorf("fill %s: %w", fill.Instrument, ErrUnknownInstrument)
	}
	trade, err := e.portfolio.ApplyFill(fill, e.bar)
	if err != nil {
		return err
	}
	e.log.Debug().
		Str("instrument", fill.Instrument).
		Str("qty", fill.Quantity.String()).
		Str("price", fill.Price.String()).
		Msg("filled")

	if e.portfolio.Quantity(fill.Instrument).IsZero() {
		delete(e.pendingExits, fill.Instrument)
	}
	if trade != nil && e.recorder != nil {
		if err := e.recorder.RecordTrade(ctx, *trade); err != nil {
			e.log.Error().Err(err).Str("instrument", trade.Instrument).Msg("record trade failed")
		}
	}
	return nil
}

// OnReject logs a refused order. Nothing is retried; the next cycle
// re-targets the instrument.
func (e *Engine) OnReject(_ context.Context, rej types.Reject) {
	e.rejects = append(e.rejects, rej)
	if id, ok := e.pendingExits[rej.Instrument]; ok && (rej.OrderID == "" || rej.OrderID == id) {
		delete(e.pendingExits, rej.Instrument)
	}
	e.log.Warn().
		Str("instrument", rej.Instrument).
		Str("order", rej.OrderID).
		Str("reason", rej.Reason).
		Msg("order rejected")
}

// RecordEquity appends the portfolio value at ts to the equity curve.
func (e *Engine) RecordEquity(ctx context.Context, ts time.Time) types.EquitySnapshot {
	snap := e.portfolio.RecordEquity(ts)
	if e.recorder != nil {
		if err := e.recorder.RecordSnapshot(ctx, snap); err != nil {
			e.log.Error().Err(err).Msg("record snapshot failed")
		}
	}
	return snap
}

// emit sends one order and reports whether the platform accepted it.
func (e *Engine) emit(ctx context.Context, order types.Order) bool {
	if err := e.platform.SendTargetOrder(ctx, order); err != nil {
		e.log.Error().Err(err).Str("instrument", order.Instrument).Msg("send target order failed")
		return false
	}
	e.orders = append(e.orders, order)
	e.targets[order.Instrument] = order.TargetQuantity
	if !order.TargetQuantity.IsZero() {
		delete(e.pendingExits, order.Instrument)
	}
	if e.recorder != nil {
		if err := e.recorder.RecordOrder(ctx, order); err != nil {
			e.log.Error().Err(err).Str("instrument", order.Instrument).Msg("record order failed")
		}
	}
	return true
}

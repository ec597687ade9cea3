package engine

import (
	"fmt"
	"time"

	"momentum/types"

	"github.com/shopspring/decimal"
)

// Portfolio is the authoritative record of cash, open positions and
// realized P&L. It is mutated only by fills and price marks.
type Portfolio struct {
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]*Position
	realizedPnL decimal.Decimal
	totalFees   decimal.Decimal
	trades      []types.Trade
	snapshots   []types.EquitySnapshot
}

type Position struct {
	Instrument string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	LastPrice  decimal.Decimal
	EntryTime  time.Time
	EntryBar   int

	peakQty  decimal.Decimal
	realized decimal.Decimal
	fees     decimal.Decimal
}

func (p *Position) Side() types.Side {
	return types.SideOf(p.Quantity.Sign())
}

func NewPortfolio(initialCash decimal.Decimal) *Portfolio {
	return &Portfolio{
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]*Position),
	}
}

func (p *Portfolio) Cash() decimal.Decimal        { return p.cash }
func (p *Portfolio) RealizedPnL() decimal.Decimal { return p.realizedPnL }
func (p *Portfolio) TotalFees() decimal.Decimal   { return p.totalFees }
func (p *Portfolio) OpenCount() int               { return len(p.positions) }

// Quantity returns the signed position in an instrument, zero when flat.
func (p *Portfolio) Quantity(instrument string) decimal.Decimal {
	if pos, ok := p.positions[instrument]; ok {
		return pos.Quantity
	}
	return decimal.Zero
}

func (p *Portfolio) Position(instrument string) (types.PositionSnapshot, bool) {
	pos, ok := p.positions[instrument]
	if !ok {
		return types.PositionSnapshot{}, false
	}
	return snapshotOf(pos), true
}

// Mark updates the last price of an open position.
func (p *Portfolio) Mark(instrument string, price decimal.Decimal) {
	if pos, ok := p.positions[instrument]; ok {
		pos.LastPrice = price
	}
}

func (p *Portfolio) UnrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.positions {
		total = total.Add(pos.LastPrice.Sub(pos.EntryPrice).Mul(pos.Quantity))
	}
	return total
}

// Value is cash plus marked positions.
func (p *Portfolio) Value() decimal.Decimal {
	value := p.cash
	for _, pos := range p.positions {
		value = value.Add(pos.Quantity.Mul(pos.LastPrice))
	}
	return value
}

func (p *Portfolio) Snapshot(curTime time.Time) types.PortfolioView {
	view := types.PortfolioView{
		Time:          curTime,
		Cash:          p.cash,
		RealizedPnL:   p.realizedPnL,
		UnrealizedPnL: p.UnrealizedPnL(),
		Positions:     make(map[string]types.PositionSnapshot, len(p.positions)),
	}
	for sym, pos := range p.positions {
		view.Positions[sym] = snapshotOf(pos)
	}
	return view
}

func snapshotOf(pos *Position) types.PositionSnapshot {
	return types.PositionSnapshot{
		Instrument: pos.Instrument,
		Side:       pos.Side(),
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		LastPrice:  pos.LastPrice,
	}
}

// RecordEquity appends the current value to the equity curve.
func (p *Portfolio) RecordEquity(ts time.Time) types.EquitySnapshot {
	snap := types.EquitySnapshot{Time: ts, Value: p.Value()}
	p.snapshots = append(p.snapshots, snap)
	return snap
}

// Trades returns a copy of the closed trade log.
func (p *Portfolio) Trades() []types.Trade {
	return append([]types.Trade(nil), p.trades...)
}

// Equity returns a copy of the equity curve.
func (p *Portfolio) Equity() []types.EquitySnapshot {
	return append([]types.EquitySnapshot(nil), p.snapshots...)
}

// ApplyFill books a fill. bar is the reference bar index used for holding
// durations. When the fill closes or flips a position the closed trade is
// returned.
func (p *Portfolio) ApplyFill(fill types.Fill, bar int) (*types.Trade, error) {
	if fill.Instrument == "" || fill.Quantity.IsZero() || !fill.Price.IsPositive() || fill.Fee.IsNegative() {
		return nil, fmt.Errorf("%w: %s qty=%s price=%s fee=%s", ErrInvalidFill, fill.Instrument, fill.Quantity, fill.Price, fill.Fee)
	}

	p.cash = p.cash.Sub(fill.Price.Mul(fill.Quantity)).Sub(fill.Fee)
	p.totalFees = p.totalFees.Add(fill.Fee)

	pos := p.positions[fill.Instrument]
	if pos == nil {
		pos = &Position{Instrument: fill.Instrument}
		p.positions[fill.Instrument] = pos
	}

	oldQty := pos.Quantity
	newQty := oldQty.Add(fill.Quantity)
	pos.LastPrice = fill.Price

	var closed *types.Trade
	switch {
	case oldQty.IsZero():
		p.open(pos, newQty, fill, bar)

	case sameSide(oldQty, newQty):
		if newQty.Abs().GreaterThan(oldQty.Abs()) {
			pos.EntryPrice = weightedAvg(pos.EntryPrice, oldQty.Abs(), fill.Price, fill.Quantity.Abs())
			if newQty.Abs().GreaterThan(pos.peakQty) {
				pos.peakQty = newQty.Abs()
			}
		} else {
			// partial reduce: the removed quantity is realized at the fill price
			p.realize(pos, fill.Quantity.Neg(), fill.Price)
		}
		pos.Quantity = newQty
		pos.fees = pos.fees.Add(fill.Fee)

	case newQty.IsZero():
		p.realize(pos, oldQty, fill.Price)
		pos.fees = pos.fees.Add(fill.Fee)
		closed = p.close(pos, fill, bar)
		delete(p.positions, fill.Instrument)

	default:
		// flip: close the old side in full, open the remainder on the new side
		p.realize(pos, oldQty, fill.Price)
		pos.fees = pos.fees.Add(fill.Fee)
		closed = p.close(pos, fill, bar)
		fresh := &Position{Instrument: fill.Instrument, LastPrice: fill.Price}
		p.positions[fill.Instrument] = fresh
		p.open(fresh, newQty, types.Fill{Price: fill.Price, Time: fill.Time}, bar)
	}
	return closed, nil
}

func (p *Portfolio) open(pos *Position, qty decimal.Decimal, fill types.Fill, bar int) {
	pos.Quantity = qty
	pos.EntryPrice = fill.Price
	pos.EntryTime = fill.Time
	pos.EntryBar = bar
	pos.peakQty = qty.Abs()
	pos.realized = decimal.Zero
	pos.fees = fill.Fee
}

// realize books P&L on closedQty (signed in the direction of the position).
func (p *Portfolio) realize(pos *Position, closedQty, price decimal.Decimal) {
	pnl := price.Sub(pos.EntryPrice).Mul(closedQty)
	pos.realized = pos.realized.Add(pnl)
	p.realizedPnL = p.realizedPnL.Add(pnl)
}

func (p *Portfolio) close(pos *Position, fill types.Fill, bar int) *types.Trade {
	duration := bar - pos.EntryBar
	if duration < 0 {
		duration = 0
	}
	trade := types.Trade{
		Instrument: pos.Instrument,
		Side:       pos.Side(),
		Quantity:   pos.peakQty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.Price,
		PnL:        pos.realized.Sub(pos.fees),
		Fees:       pos.fees,
		Duration:   duration,
		EntryTime:  pos.EntryTime,
		ExitTime:   fill.Time,
	}
	p.trades = append(p.trades, trade)
	return &trade
}

func sameSide(a, b decimal.Decimal) bool {
	return (a.IsPositive() && b.IsPositive()) || (a.IsNegative() && b.IsNegative())
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}

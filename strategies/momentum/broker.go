package momentum

import (
	"context"
	"sync"
	"time"

	"momentum/internal/engine"
	"momentum/types"

	"github.com/shopspring/decimal"
)

// Broker is a paper execution platform. It queues target orders and, when
// drained, fills the difference between target and held quantity at the
// instrument's last marked close.
//
// - No slippage
// - Fees come from the configured FeeModel
// - With a cash check, buys that increase exposure are rejected when
//   price * qty + fee exceeds the remaining cash
// - Does NOT mutate the engine's portfolio; the engine applies fills.
type Broker struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
	last      map[string]decimal.Decimal
	pending   []types.Order
	fee       FeeModel
	cashCheck bool
}

type Option func(*Broker)

func WithFeeModel(m FeeModel) Option { return func(b *Broker) { b.fee = m } }

func WithCashCheck() Option { return func(b *Broker) { b.cashCheck = true } }

func NewBroker(cash decimal.Decimal, opts ...Option) *Broker {
	b := &Broker{
		cash:      cash,
		positions: make(map[string]decimal.Decimal),
		last:      make(map[string]decimal.Decimal),
		fee:       NoFees,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) SendTargetOrder(_ context.Context, order types.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, order)
	return nil
}

func (b *Broker) PortfolioValue() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	value := b.cash
	for inst, qty := range b.positions {
		value = value.Add(qty.Mul(b.last[inst]))
	}
	return value
}

func (b *Broker) Mark(bar types.Candle) {
	if !bar.Close.IsPositive() {
		return
	}
	b.mu.Lock()
	b.last[bar.Instrument] = bar.Close
	b.mu.Unlock()
}

func (b *Broker) Cash() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

func (b *Broker) Position(instrument string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[instrument]
}

// Drain executes every queued order in arrival order.
func (b *Broker) Drain(ts time.Time) ([]types.Fill, []types.Reject) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var fills []types.Fill
	var rejects []types.Reject
	reject := func(o types.Order, reason string) {
		rejects = append(rejects, types.Reject{OrderID: o.ID, Instrument: o.Instrument, Reason: reason, Time: ts})
	}

	for _, order := range b.pending {
		price, ok := b.last[order.Instrument]
		if !ok {
			reject(order, "No market data for instrument")
			continue
		}
		if order.OrderType == types.TypeLimit {
			reject(order, "Limit orders are not supported")
			continue
		}

		held := b.positions[order.Instrument]
		delta := order.TargetQuantity.Sub(held)
		if delta.IsZero() {
			continue
		}

		tradeValue := delta.Abs().Mul(price)
		fee := b.fee(tradeValue)
		cashDelta := delta.Mul(price).Neg().Sub(fee)

		if b.cashCheck && increasesLong(held, order.TargetQuantity) && b.cash.Add(cashDelta).IsNegative() {
			reject(order, "Not enough cash available for buy")
			continue
		}

		b.cash = b.cash.Add(cashDelta)
		if order.TargetQuantity.IsZero() {
			delete(b.positions, order.Instrument)
		} else {
			b.positions[order.Instrument] = order.TargetQuantity
		}
		fills = append(fills, types.Fill{
			OrderID:    order.ID,
			Instrument: order.Instrument,
			Quantity:   delta,
			Price:      price,
			Fee:        fee,
			Time:       ts,
		})
	}
	b.pending = nil
	return fills, rejects
}

func increasesLong(held, target decimal.Decimal) bool {
	return target.IsPositive() && target.GreaterThan(held)
}

var _ engine.Broker = (*Broker)(nil)

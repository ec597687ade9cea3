package engine

import (
	"context"
	"errors"
	"time"

	"momentum/types"

	"github.com/shopspring/decimal"
)

// Platform is the order-routing side of the market platform. Orders are
// fire-and-forget; fills and rejections come back through Engine.OnFill
// and Engine.OnReject.
type Platform interface {
	SendTargetOrder(ctx context.Context, order types.Order) error
	PortfolioValue() decimal.Decimal
}

// Broker is a Platform that can be driven by a replay or a live feed: it
// sees every bar and hands back the executions it produced.
type Broker interface {
	Platform
	Mark(bar types.Candle)
	Drain(ts time.Time) ([]types.Fill, []types.Reject)
}

// Recorder observes what the engine does. Failures are logged and never
// interrupt a cycle.
type Recorder interface {
	RecordOrder(ctx context.Context, order types.Order) error
	RecordTrade(ctx context.Context, trade types.Trade) error
	RecordSnapshot(ctx context.Context, snap types.EquitySnapshot) error
}

// Recorders fans out to several recorders and joins their errors.
type Recorders []Recorder

func (rs Recorders) RecordOrder(ctx context.Context, order types.Order) error {
	var errs []error
	for _, r := range rs {
		if err := r.RecordOrder(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rs Recorders) RecordTrade(ctx context.Context, trade types.Trade) error {
	var errs []error
	for _, r := range rs {
		if err := r.RecordTrade(ctx, trade); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rs Recorders) RecordSnapshot(ctx context.Context, snap types.EquitySnapshot) error {
	var errs []error
	for _, r := range rs {
		if err := r.RecordSnapshot(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

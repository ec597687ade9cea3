package engine

import (
	"context"
	"errors"

	"momentum/types"
)

// Stream drives the engine from a live tick channel until the channel is
// closed or ctx is done. Ticks are handled one at a time; executions are
// settled after every tick and equity is recorded on reference ticks.
func (e *Engine) Stream(ctx context.Context, ticks <-chan types.Candle, broker Broker) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case candle, ok := <-ticks:
			if !ok {
				return nil
			}
			broker.Mark(candle)
			if err := e.OnTick(ctx, candle); err != nil {
				if errors.Is(err, ErrUnknownInstrument) || errors.Is(err, ErrInvalidBar) {
					e.log.Warn().Err(err).Msg("dropping tick")
					continue
				}
				return err
			}
			if err := settle(ctx, e, broker, candle.Timestamp); err != nil {
				return err
			}
			if candle.Instrument == e.reference {
				e.RecordEquity(ctx, candle.Timestamp)
			}
		}
	}
}

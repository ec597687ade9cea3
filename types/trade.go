package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a closed round trip. It is recorded when a position returns to
// zero (or flips side) and never changes afterwards.
type Trade struct {
	Instrument string
	Side       Side
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PnL        decimal.Decimal
	Fees       decimal.Decimal
	// Duration is the number of reference bars the position was held.
	Duration  int
	EntryTime time.Time
	ExitTime  time.Time
}

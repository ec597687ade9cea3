package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one price bar for one instrument. Bars arrive ordered by
// Timestamp, at most one per instrument per tick.
type Candle struct {
	Instrument string          `json:"instrument"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	Interval   Interval        `json:"interval"`
	Timestamp  time.Time       `json:"timestamp"`
}

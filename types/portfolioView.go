package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type PortfolioView struct {
	Time          time.Time
	Cash          decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Positions     map[string]PositionSnapshot
}

type PositionSnapshot struct {
	Instrument string
	Side       Side
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	LastPrice  decimal.Decimal
}

// Value is cash plus the marked value of every open position.
func (v PortfolioView) Value() decimal.Decimal {
	value := v.Cash
	for _, pos := range v.Positions {
		value = value.Add(pos.Quantity.Mul(pos.LastPrice))
	}
	return value
}

// EquitySnapshot is the portfolio value at the close of one reference bar.
type EquitySnapshot struct {
	Time  time.Time
	Value decimal.Decimal
}

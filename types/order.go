package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a target-shares intent sent to the execution platform. The core
// never assumes an order is filled immediately or in full.
type Order struct {
	ID             string
	Instrument     string
	TargetQuantity decimal.Decimal
	OrderType      OrderType
	LimitPrice     decimal.Decimal
	Mode           SizingMode
	Reason         string
	CreatedAt      time.Time
}

func NewTargetOrder(
	id string,
	instrument string,
	targetQuantity decimal.Decimal,
	reason string,
	createdAt time.Time,
) Order {
	return Order{
		ID:             id,
		Instrument:     instrument,
		TargetQuantity: targetQuantity,
		OrderType:      TypeMarket,
		LimitPrice:     decimal.Zero,
		Mode:           SizingTargetShares,
		Reason:         reason,
		CreatedAt:      createdAt,
	}
}

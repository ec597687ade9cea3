package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill acknowledges an executed quantity. Quantity is signed: positive
// bought, negative sold.
type Fill struct {
	OrderID    string
	Instrument string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal
	Time       time.Time
}

// Reject reports an order the platform refused.
type Reject struct {
	OrderID    string
	Instrument string
	Reason     string
	Time       time.Time
}

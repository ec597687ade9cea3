package types

type Side string

type OrderType string

type SizingMode string

type OrderStatus string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideFlat  Side = "FLAT"

	TypeMarket OrderType = "MKT"
	TypeLimit  OrderType = "LMT"

	// SizingTargetShares means Order.TargetQuantity is the desired absolute
	// position after execution, not a delta.
	SizingTargetShares SizingMode = "TARGET_SHARES"

	OrderFilled          OrderStatus = "ORDER_FILLED"
	OrderPartiallyFilled OrderStatus = "ORDER_PARTIALLY_FILLED"
	OrderRejected        OrderStatus = "ORDER_REJECTED"
)

// SideOf returns the side implied by the sign of a signed quantity.
func SideOf(sign int) Side {
	switch {
	case sign > 0:
		return SideLong
	case sign < 0:
		return SideShort
	default:
		return SideFlat
	}
}

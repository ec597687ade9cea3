package momentum

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeModel returns the commission for one execution of the given absolute
// trade value.
type FeeModel func(tradeValue decimal.Decimal) decimal.Decimal

func NoFees(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// IBKRFixedFee computes the commission for USD-denominated stocks using IBKR
// "Fixed - IB SmartRouting" pricing.
//
// Schedule (per IBKR, Netherlands, USD):
//   - 0.05% of trade value
//   - Minimum per order: USD 1.70
//   - Maximum per order: USD 39.00
func IBKRFixedFee(tradeValue decimal.Decimal) decimal.Decimal {
	if tradeValue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	// 0.05% = 0.0005
	rate := decimal.RequireFromString("0.0005")
	fee := tradeValue.Mul(rate)

	minFee := decimal.RequireFromString("1.70")
	maxFee := decimal.RequireFromString("39")

	if fee.LessThan(minFee) {
		fee = minFee
	}
	if fee.GreaterThan(maxFee) {
		fee = maxFee
	}
	return fee
}

// IBKRForexFee is the tier 1 (lowest) forex schedule: 0.20 basis points of
// trade value with a USD 2.00 minimum.
func IBKRForexFee(tradeValue decimal.Decimal) decimal.Decimal {
	if tradeValue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	// 0.20 basis point = 0.20 * 0.0001 = 0.00002
	rate := decimal.RequireFromString("0.00002")
	fee := tradeValue.Mul(rate)

	minFee := decimal.RequireFromString("2.00")
	if fee.LessThan(minFee) {
		fee = minFee
	}

	return fee
}

// ParseFeeModel maps the config name to a fee model.
func ParseFeeModel(name string) (FeeModel, error) {
	switch name {
	case "", "none":
		return NoFees, nil
	case "ibkr_fixed":
		return IBKRFixedFee, nil
	case "ibkr_forex":
		return IBKRForexFee, nil
	default:
		return nil, fmt.Errorf("unknown fee model %q", name)
	}
}

package engine

import (
	"fmt"

	"momentum/internal/risk"
	"momentum/internal/signal"

	"github.com/shopspring/decimal"
)

type Sizing string

const (
	// SizingEqualWeight splits portfolio value evenly across longs and shorts.
	SizingEqualWeight Sizing = "equal_weight"
	// SizingFixedFraction sizes each position with risk.Manager.PositionSize.
	SizingFixedFraction Sizing = "fixed_fraction"
)

// Config is fixed for the lifetime of an Engine.
type Config struct {
	Universe []string
	// ReferenceInstrument drives the rebalance counter. Defaults to Universe[0].
	ReferenceInstrument string
	LookbackPeriod      int
	RebalancePeriod     int
	// HoldCount is K: the number of longs and the number of shorts.
	HoldCount int
	Sizing    Sizing
	// ConfirmEntries requires a matching signal.Decision before a new position is opened.
	ConfirmEntries bool
	Signal         signal.Params
	Risk           risk.Config
	InitialCapital decimal.Decimal
}

func (c Config) reference() string {
	if c.ReferenceInstrument != "" {
		return c.ReferenceInstrument
	}
	if len(c.Universe) > 0 {
		return c.Universe[0]
	}
	return ""
}

func (c Config) Validate() error {
	if len(c.Universe) == 0 {
		return fmt.Errorf("%w: empty universe", ErrInvalidConfiguration)
	}
	seen := make(map[string]struct{}, len(c.Universe))
	for _, inst := range c.Universe {
		if inst == "" {
			return fmt.Errorf("%w: empty instrument symbol", ErrInvalidConfiguration)
		}
		if _, ok := seen[inst]; ok {
			return fmt.Errorf("%w: duplicate instrument %s", ErrInvalidConfiguration, inst)
		}
		seen[inst] = struct{}{}
	}
	if _, ok := seen[c.reference()]; !ok {
		return fmt.Errorf("%w: reference instrument %s not in universe", ErrInvalidConfiguration, c.reference())
	}
	if c.LookbackPeriod < 1 {
		return fmt.Errorf("%w: lookback period must be positive, got %d", ErrInvalidConfiguration, c.LookbackPeriod)
	}
	if c.RebalancePeriod < 1 {
		return fmt.Errorf("%w: rebalance period must be positive, got %d", ErrInvalidConfiguration, c.RebalancePeriod)
	}
	if c.HoldCount < 1 {
		return fmt.Errorf("%w: hold count must be positive, got %d", ErrInvalidConfiguration, c.HoldCount)
	}
	if 2*c.HoldCount > len(c.Universe) {
		return fmt.Errorf("%w: hold count %d needs %d instruments, universe has %d",
			ErrInvalidConfiguration, c.HoldCount, 2*c.HoldCount, len(c.Universe))
	}
	switch c.Sizing {
	case SizingEqualWeight:
	case SizingFixedFraction:
		f := c.Risk.PositionSizeFraction
		if !f.IsPositive() || f.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: position size fraction must be in (0, 1], got %s", ErrInvalidConfiguration, f)
		}
	default:
		return fmt.Errorf("%w: unknown sizing %q", ErrInvalidConfiguration, c.Sizing)
	}
	if err := validateSignal(c.Signal); err != nil {
		return err
	}
	return validateRisk(c.Risk)
}

func validateSignal(p signal.Params) error {
	if p.FastPeriod < 1 || p.SlowPeriod < 1 || p.RSIPeriod < 1 || p.LookbackPeriod < 1 {
		return fmt.Errorf("%w: signal periods must be positive (lookback=%d fast=%d slow=%d rsi=%d)",
			ErrInvalidConfiguration, p.LookbackPeriod, p.FastPeriod, p.SlowPeriod, p.RSIPeriod)
	}
	if p.FastPeriod >= p.SlowPeriod {
		return fmt.Errorf("%w: fast period %d must be shorter than slow period %d", ErrInvalidConfiguration, p.FastPeriod, p.SlowPeriod)
	}
	if p.MomentumThreshold < 0 {
		return fmt.Errorf("%w: momentum threshold must not be negative", ErrInvalidConfiguration)
	}
	if p.RSIOversold < 0 || p.RSIOverbought > 100 || p.RSIOversold >= p.RSIOverbought {
		return fmt.Errorf("%w: rsi bounds %v/%v", ErrInvalidConfiguration, p.RSIOversold, p.RSIOverbought)
	}
	return nil
}

func validateRisk(r risk.Config) error {
	one := decimal.NewFromInt(1)
	for name, v := range map[string]decimal.Decimal{
		"stop loss":        r.StopLossPct,
		"take profit":      r.TakeProfitPct,
		"daily loss limit": r.DailyLossLimit,
		"max drawdown":     r.MaxDrawdown,
	} {
		if v.IsNegative() || v.GreaterThanOrEqual(one) {
			return fmt.Errorf("%w: %s must be in [0, 1), got %s", ErrInvalidConfiguration, name, v)
		}
	}
	if r.MaxPositions < 0 {
		return fmt.Errorf("%w: max positions must not be negative", ErrInvalidConfiguration)
	}
	f := r.Filters
	if f.MinPrice < 0 || f.MaxPrice < 0 || f.MinVolume < 0 || (f.MaxPrice > 0 && f.MinPrice > f.MaxPrice) {
		return fmt.Errorf("%w: market filters min_price=%v max_price=%v min_volume=%v",
			ErrInvalidConfiguration, f.MinPrice, f.MaxPrice, f.MinVolume)
	}
	return nil
}

// Package risk holds the position sizing and exit policy. The functions are
// stateless apart from the two guards, which track portfolio value over a
// trading day and over the whole run.
package risk

import (
	"time"

	"momentum/types"

	"github.com/shopspring/decimal"
)

type ExitReason string

const (
	ExitNone       ExitReason = "NONE"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
)

// Filters gate new entries on the instrument's last bar. Zero disables a limit.
type Filters struct {
	MinPrice  float64
	MaxPrice  float64
	MinVolume float64
}

type Config struct {
	PositionSizeFraction decimal.Decimal
	StopLossPct          decimal.Decimal
	TakeProfitPct        decimal.Decimal
	MaxPositions         int
	DailyLossLimit       decimal.Decimal
	MaxDrawdown          decimal.Decimal
	Filters              Filters
}

type Manager struct {
	cfg Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

func (m *Manager) Config() Config { return m.cfg }

// PositionSize returns fraction * portfolioValue / price whole shares,
// negated for the short side.
func (m *Manager) PositionSize(portfolioValue, price decimal.Decimal, side types.Side) decimal.Decimal {
	if !price.IsPositive() || !portfolioValue.IsPositive() {
		return decimal.Zero
	}
	qty := m.cfg.PositionSizeFraction.Mul(portfolioValue).Div(price).Floor()
	if side == types.SideShort {
		return qty.Neg()
	}
	return qty
}

// CheckExit compares the position's unrealized return with the stop-loss and
// take-profit thresholds. Shorts profit when the price falls.
func (m *Manager) CheckExit(pos types.PositionSnapshot, price decimal.Decimal) ExitReason {
	if pos.Quantity.IsZero() || !pos.EntryPrice.IsPositive() {
		return ExitNone
	}
	ret := price.Sub(pos.EntryPrice).Div(pos.EntryPrice)
	if pos.Quantity.IsNegative() {
		ret = ret.Neg()
	}
	if m.cfg.StopLossPct.IsPositive() && ret.LessThanOrEqual(m.cfg.StopLossPct.Neg()) {
		return ExitStopLoss
	}
	if m.cfg.TakeProfitPct.IsPositive() && ret.GreaterThanOrEqual(m.cfg.TakeProfitPct) {
		return ExitTakeProfit
	}
	return ExitNone
}

// Admit reports whether another position may be opened.
func (m *Manager) Admit(openCount int) bool {
	return AdmitNewPosition(openCount, m.cfg.MaxPositions)
}

// AdmitNewPosition is false once openCount reaches maxPositions. A
// non-positive maximum means unlimited.
func AdmitNewPosition(openCount, maxPositions int) bool {
	if maxPositions <= 0 {
		return true
	}
	return openCount < maxPositions
}

// AllowEntry applies the market filters to the last price and volume.
func (m *Manager) AllowEntry(price, volume float64) (bool, string) {
	f := m.cfg.Filters
	if f.MinPrice > 0 && price < f.MinPrice {
		return false, "price below minimum"
	}
	if f.MaxPrice > 0 && price > f.MaxPrice {
		return false, "price above maximum"
	}
	if f.MinVolume > 0 && volume < f.MinVolume {
		return false, "volume below minimum"
	}
	return true, ""
}

// DailyLossGuard blocks new entries for the rest of a UTC day once the
// value has fallen more than limit * day-start value.
type DailyLossGuard struct {
	limit      decimal.Decimal
	day        time.Time
	startValue decimal.Decimal
	blocked    bool
}

func NewDailyLossGuard(limit decimal.Decimal) *DailyLossGuard {
	return &DailyLossGuard{limit: limit}
}

// Update records the current value at ts and returns whether entries are blocked.
func (g *DailyLossGuard) Update(ts time.Time, value decimal.Decimal) bool {
	day := ts.UTC().Truncate(24 * time.Hour)
	if g.day.IsZero() || !day.Equal(g.day) {
		g.day = day
		g.startValue = value
		g.blocked = false
	}
	if g.blocked || !g.limit.IsPositive() || !g.startValue.IsPositive() {
		return g.blocked
	}
	pnl := value.Sub(g.startValue)
	if pnl.LessThan(g.limit.Mul(g.startValue).Neg()) {
		g.blocked = true
	}
	return g.blocked
}

func (g *DailyLossGuard) Blocked() bool { return g.blocked }

// DrawdownGuard blocks new entries while the value is more than max below
// its running peak.
type DrawdownGuard struct {
	max  decimal.Decimal
	peak decimal.Decimal
}

func NewDrawdownGuard(limit decimal.Decimal) *DrawdownGuard {
	return &DrawdownGuard{max: limit}
}

func (g *DrawdownGuard) Update(value decimal.Decimal) bool {
	if value.GreaterThan(g.peak) {
		g.peak = value
	}
	return g.Breached(value)
}

func (g *DrawdownGuard) Breached(value decimal.Decimal) bool {
	if !g.max.IsPositive() || !g.peak.IsPositive() {
		return false
	}
	floor := g.peak.Mul(decimal.NewFromInt(1).Sub(g.max))
	return value.LessThan(floor)
}

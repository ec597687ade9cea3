package engine

import (
	"context"
	"errors"
	"sort"

	"momentum/internal/history"
	"momentum/internal/signal"
	"momentum/types"

	"github.com/shopspring/decimal"
)

type State int

const (
	StateAccumulating State = iota
	StateRanking
	StateAllocating
	StateEmitting
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "Accumulating"
	case StateRanking:
		return "Ranking"
	case StateAllocating:
		return "Allocating"
	case StateEmitting:
		return "Emitting"
	default:
		return "Unknown"
	}
}

type CycleOutcome string

const (
	CycleNone              CycleOutcome = ""
	CycleNotReady          CycleOutcome = "NOT_READY"
	CycleAllocationSkipped CycleOutcome = "ALLOCATION_SKIPPED"
	CycleRebalanced        CycleOutcome = "REBALANCED"
)

// Score is one instrument's momentum at ranking time.
type Score struct {
	Instrument string
	Momentum   float64
}

// Cycle describes the last rebalance attempt.
type Cycle struct {
	Bar     int
	Outcome CycleOutcome
	Longs   []string
	Shorts  []string
	Flats   []string
	Orders  []types.Order
	// Skipped maps an instrument to the reason its entry was not taken.
	Skipped map[string]string
	// NotReady lists instruments whose history was shorter than the lookback.
	NotReady []string
}

// Rank sorts scores by momentum, highest first. Equal scores keep universe order.
func Rank(scores map[string]float64, universe []string) []Score {
	ranked := make([]Score, 0, len(scores))
	for _, inst := range universe {
		if m, ok := scores[inst]; ok {
			ranked = append(ranked, Score{Instrument: inst, Momentum: m})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Momentum > ranked[j].Momentum
	})
	return ranked
}

// Partition takes the top k as longs and the bottom k as shorts. Flats are
// returned in universe order.
func Partition(ranked []Score, k int, universe []string) (longs, shorts, flats []string) {
	if k < 0 {
		k = 0
	}
	if 2*k > len(ranked) {
		k = len(ranked) / 2
	}
	picked := make(map[string]struct{}, 2*k)
	for _, s := range ranked[:k] {
		longs = append(longs, s.Instrument)
		picked[s.Instrument] = struct{}{}
	}
	for _, s := range ranked[len(ranked)-k:] {
		shorts = append(shorts, s.Instrument)
		picked[s.Instrument] = struct{}{}
	}
	for _, inst := range universe {
		if _, ok := picked[inst]; !ok {
			flats = append(flats, inst)
		}
	}
	return longs, shorts, flats
}

// rebalance walks Ranking -> Allocating -> Emitting and always returns to
// Accumulating. Orders are built in full before the first one is sent.
func (e *Engine) rebalance(ctx context.Context) Cycle {
	cycle := Cycle{Bar: e.bar, Skipped: make(map[string]string)}
	defer func() { e.state = StateAccumulating }()

	for _, inst := range e.cfg.Universe {
		if have := e.history.Len(inst); have < e.cfg.LookbackPeriod {
			e.log.Warn().
				Str("instrument", inst).
				Int("have", have).
				Int("need", e.cfg.LookbackPeriod).
				Msg("insufficient history, staying in accumulating")
			cycle.NotReady = append(cycle.NotReady, inst)
		}
	}
	if len(cycle.NotReady) > 0 {
		cycle.Outcome = CycleNotReady
		return cycle
	}

	e.state = StateRanking
	scores := make(map[string]float64, len(e.cfg.Universe))
	for _, inst := range e.cfg.Universe {
		window, err := e.history.Window(inst, e.cfg.LookbackPeriod)
		if err != nil {
			cycle.Skipped[inst] = err.Error()
			continue
		}
		mom, err := signal.Momentum(window, e.cfg.LookbackPeriod)
		if err != nil {
			cycle.Skipped[inst] = err.Error()
			continue
		}
		scores[inst] = mom
	}
	ranked := Rank(scores, e.cfg.Universe)

	e.state = StateAllocating
	cycle.Longs, cycle.Shorts, cycle.Flats = Partition(ranked, e.cfg.HoldCount, e.cfg.Universe)
	e.log.Info().
		Int("bar", e.bar).
		Strs("longs", cycle.Longs).
		Strs("shorts", cycle.Shorts).
		Strs("flats", cycle.Flats).
		Msg("ranked universe")

	orders := e.allocate(&cycle)
	if orders == nil {
		cycle.Outcome = CycleAllocationSkipped
		return cycle
	}

	e.state = StateEmitting
	for _, order := range orders {
		if e.emit(ctx, order) {
			cycle.Orders = append(cycle.Orders, order)
		}
	}
	cycle.Outcome = CycleRebalanced
	return cycle
}

// allocate returns the target orders for a cycle, or nil when there is
// nothing to allocate to.
func (e *Engine) allocate(cycle *Cycle) []types.Order {
	active := len(cycle.Longs) + len(cycle.Shorts)
	if active == 0 {
		e.log.Info().Msg("empty long and short sets, allocation skipped")
		return nil
	}
	value := e.platform.PortfolioValue()
	if !value.IsPositive() {
		e.log.Warn().Str("value", value.String()).Msg("non-positive portfolio value, allocation skipped")
		return nil
	}
	capitalPer := value.Div(decimal.NewFromInt(int64(active)))

	entriesBlocked := ""
	switch {
	case e.daily.Blocked():
		entriesBlocked = "daily loss limit"
	case e.drawdown.Breached(e.portfolio.Value()):
		entriesBlocked = "max drawdown"
	}

	orders := make([]types.Order, 0, len(e.cfg.Universe))
	for _, inst := range cycle.Flats {
		if e.portfolio.Quantity(inst).IsZero() && e.targets[inst].IsZero() {
			continue
		}
		if _, exiting := e.pendingExits[inst]; exiting {
			continue
		}
		orders = append(orders, e.order(inst, decimal.Zero, "flat"))
	}

	// open counts positions that survive this cycle, so the cap sees kept
	// holdings before new entries.
	open := 0
	for _, inst := range append(append([]string(nil), cycle.Longs...), cycle.Shorts...) {
		side := types.SideLong
		if contains(cycle.Shorts, inst) {
			side = types.SideShort
		}
		if _, exiting := e.pendingExits[inst]; exiting {
			continue
		}
		if types.SideOf(e.portfolio.Quantity(inst).Sign()) == side {
			open++
		}
	}

	place := func(inst string, side types.Side) {
		// a pending exit settles before the instrument is re-targeted
		if _, exiting := e.pendingExits[inst]; exiting {
			cycle.Skipped[inst] = "pending exit"
			e.log.Info().Str("instrument", inst).Str("side", string(side)).Msg("entry skipped, exit pending")
			return
		}
		price := e.lastPrice[inst]
		held := types.SideOf(e.portfolio.Quantity(inst).Sign())
		isEntry := held != side
		if isEntry {
			if reason := e.entryVeto(inst, side, entriesBlocked, open); reason != "" {
				cycle.Skipped[inst] = reason
				e.log.Info().Str("instrument", inst).Str("side", string(side)).Str("reason", reason).Msg("entry skipped")
				if held != types.SideFlat {
					orders = append(orders, e.order(inst, decimal.Zero, "flat: "+reason))
				}
				return
			}
			open++
		}
		orders = append(orders, e.order(inst, e.targetQuantity(capitalPer, value, price, side), string(side)))
	}
	for _, inst := range cycle.Longs {
		place(inst, types.SideLong)
	}
	for _, inst := range cycle.Shorts {
		place(inst, types.SideShort)
	}
	return orders
}

// entryVeto returns why a new position may not be opened, or "" when it may.
func (e *Engine) entryVeto(inst string, side types.Side, blocked string, open int) string {
	if blocked != "" {
		return blocked
	}
	if !e.risk.Admit(open) {
		return "max positions"
	}
	price, _ := e.history.Series(inst).Last()
	volume, _ := e.history.Series(inst).LastVolume()
	if ok, reason := e.risk.AllowEntry(price, volume); !ok {
		return reason
	}
	if !e.cfg.ConfirmEntries {
		return ""
	}
	window, err := e.history.Window(inst, e.cfg.Signal.Required())
	if err != nil {
		if errors.Is(err, history.ErrInsufficientHistory) {
			return "insufficient history for signal"
		}
		return err.Error()
	}
	sig, err := signal.Generate(inst, window, e.cfg.Signal, e.now)
	if err != nil {
		return err.Error()
	}
	want := signal.DecisionLong
	if side == types.SideShort {
		want = signal.DecisionShort
	}
	if sig.Decision != want {
		return "signal " + string(sig.Decision)
	}
	return ""
}

func (e *Engine) targetQuantity(capitalPer, value, price decimal.Decimal, side types.Side) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	if e.cfg.Sizing == SizingFixedFraction {
		// never more than the equal share of the cycle's budget
		qty := e.risk.PositionSize(value, price, side)
		limit := capitalPer.Div(price).Floor()
		if qty.Abs().GreaterThan(limit) {
			if side == types.SideShort {
				return limit.Neg()
			}
			return limit
		}
		return qty
	}
	qty := capitalPer.Div(price)
	if side == types.SideShort {
		return qty.Neg()
	}
	return qty
}

func (e *Engine) order(inst string, target decimal.Decimal, reason string) types.Order {
	return types.NewTargetOrder(e.newID(), inst, target, reason, e.now)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

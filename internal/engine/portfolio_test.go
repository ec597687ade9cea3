package engine

import (
	"errors"
	"testing"
	"time"

	"momentum/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioApplyFill(t *testing.T) {
	t0 := time.Date(2025, time.January, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		startCash     string
		start         map[string]*Position
		fills         []types.Fill
		wantCash      string
		wantPositions map[string]*Position
		wantRealized  string
		wantTrades    int
		wantErr       error
	}{
		{
			name:      "open long",
			startCash: "10000",
			fills:     []types.Fill{newFill(t0, "AAPL", "10", "100", "1.00")},
			wantCash:  "8999",
			wantPositions: map[string]*Position{
				"AAPL": {Instrument: "AAPL", Quantity: dec("10"), EntryPrice: dec("100"), LastPrice: dec("100")},
			},
			wantRealized: "0",
		},
		{
			name:      "scale-in long (entry price averages)",
			startCash: "10000",
			start: map[string]*Position{
				"AAPL": {Instrument: "AAPL", Quantity: dec("10"), EntryPrice: dec("100"), LastPrice: dec("100")},
			},
			fills:    []types.Fill{newFill(t0.Add(time.Minute), "AAPL", "5", "110", "0")},
			wantCash: "9450",
			wantPositions: map[string]*Position{
				"AAPL": {Instrument: "AAPL", Quantity: dec("15"), EntryPrice: dec("103.3333333333333333"), LastPrice: dec("110")},
			},
			wantRealized: "0",
		},
		{
			name:      "reduce long realizes the sold part",
			startCash: "0",
			start: map[string]*Position{
				"AAPL": {Instrument: "AAPL", Quantity: dec("10"), EntryPrice: dec("100"), LastPrice: dec("100")},
			},
			fills:    []types.Fill{newFill(t0, "AAPL", "-4", "110", "0")},
			wantCash: "440",
			wantPositions: map[string]*Position{
				"AAPL": {Instrument: "AAPL", Quantity: dec("6"), EntryPrice: dec("100"), LastPrice: dec("110")},
			},
			wantRealized: "40",
		},
		{
			name:      "close long at a loss with fee",
			startCash: "0",
			start: map[string]*Position{
				"AAPL": {Instrument: "AAPL", Quantity: dec("10"), EntryPrice: dec("100"), LastPrice: dec("100")},
			},
			fills:         []types.Fill{newFill(t0, "AAPL", "-10", "90", "2")},
			wantCash:      "898",
			wantPositions: map[string]*Position{},
			wantRealized:  "-100",
			wantTrades:    1,
		},
		{
			name:      "open short credits cash",
			startCash: "1000",
			fills:     []types.Fill{newFill(t0, "MSFT", "-10", "50", "0")},
			wantCash:  "1500",
			wantPositions: map[string]*Position{
				"MSFT": {Instrument: "MSFT", Quantity: dec("-10"), EntryPrice: dec("50"), LastPrice: dec("50")},
			},
			wantRealized: "0",
		},
		{
			name:      "cover short at a profit",
			startCash: "1500",
			start: map[string]*Position{
				"MSFT": {Instrument: "MSFT", Quantity: dec("-10"), EntryPrice: dec("50"), LastPrice: dec("50")},
			},
			fills:         []types.Fill{newFill(t0, "MSFT", "10", "40", "0")},
			wantCash:      "1100",
			wantPositions: map[string]*Position{},
			wantRealized:  "100",
			wantTrades:    1,
		},
		{
			name:      "flip long to short",
			startCash: "0",
			start: map[string]*Position{
				"AAPL": {Instrument: "AAPL", Quantity: dec("10"), EntryPrice: dec("100"), LastPrice: dec("100")},
			},
			fills:    []types.Fill{newFill(t0, "AAPL", "-15", "120", "0")},
			wantCash: "1800",
			wantPositions: map[string]*Position{
				"AAPL": {Instrument: "AAPL", Quantity: dec("-5"), EntryPrice: dec("120"), LastPrice: dec("120")},
			},
			wantRealized: "200",
			wantTrades:   1,
		},
		{
			name:          "zero quantity fill is rejected",
			startCash:     "1000",
			fills:         []types.Fill{newFill(t0, "AAPL", "0", "100", "0")},
			wantCash:      "1000",
			wantPositions: map[string]*Position{},
			wantErr:       ErrInvalidFill,
		},
		{
			name:          "non-positive price is rejected",
			startCash:     "1000",
			fills:         []types.Fill{newFill(t0, "AAPL", "1", "0", "0")},
			wantCash:      "1000",
			wantPositions: map[string]*Position{},
			wantErr:       ErrInvalidFill,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPortfolio(dec(tc.startCash))
			for sym, pos := range tc.start {
				cp := *pos
				cp.peakQty = cp.Quantity.Abs()
				p.positions[sym] = &cp
			}

			var err error
			for _, f := range tc.fills {
				if _, err = p.ApplyFill(f, 1); err != nil {
					break
				}
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got error %v, want %v", err, tc.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if want, got := dec(tc.wantCash), p.Cash(); !want.Equal(got) {
				t.Fatalf("cash mismatch: got %s want %s", got, want)
			}
			if tc.wantErr == nil {
				if want, got := dec(tc.wantRealized), p.RealizedPnL(); !want.Equal(got) {
					t.Fatalf("realized mismatch: got %s want %s", got, want)
				}
			}

			for sym, wantPos := range tc.wantPositions {
				gotPos := p.positions[sym]
				if gotPos == nil {
					t.Fatalf("position for %s missing", sym)
				}
				if !gotPos.Quantity.Equal(wantPos.Quantity) {
					t.Fatalf("qty mismatch: got %s want %s", gotPos.Quantity, wantPos.Quantity)
				}
				if !gotPos.EntryPrice.RoundBank(6).Equal(wantPos.EntryPrice.RoundBank(6)) {
					t.Fatalf("entry price mismatch: got %s want %s", gotPos.EntryPrice, wantPos.EntryPrice)
				}
				if !gotPos.LastPrice.Equal(wantPos.LastPrice) {
					t.Fatalf("lastPrice mismatch: got %s want %s", gotPos.LastPrice, wantPos.LastPrice)
				}
				if gotPos.Side() != types.SideOf(gotPos.Quantity.Sign()) {
					t.Fatalf("side %s inconsistent with quantity %s", gotPos.Side(), gotPos.Quantity)
				}
			}
			if len(p.positions) != len(tc.wantPositions) {
				t.Fatalf("unexpected extra positions: got %+v, want %+v", p.positions, tc.wantPositions)
			}
			if got := len(p.Trades()); got != tc.wantTrades {
				t.Fatalf("trades: got %d want %d", got, tc.wantTrades)
			}
		})
	}
}

func TestPortfolio_ClosedTrade(t *testing.T) {
	t0 := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	p := NewPortfolio(dec("10000"))

	_, err := p.ApplyFill(newFill(t0, "AAPL", "10", "100", "1"), 3)
	require.NoError(t, err)
	_, err = p.ApplyFill(newFill(t0.Add(24*time.Hour), "AAPL", "5", "106", "1"), 4)
	require.NoError(t, err)
	trade, err := p.ApplyFill(newFill(t0.Add(48*time.Hour), "AAPL", "-15", "110", "1"), 8)
	require.NoError(t, err)
	require.NotNil(t, trade)

	// entry averages to 102, so the exit realizes 15 * 8 = 120 before 3 in fees
	assert.Equal(t, "AAPL", trade.Instrument)
	assert.Equal(t, types.SideLong, trade.Side)
	assert.True(t, dec("15").Equal(trade.Quantity), trade.Quantity.String())
	assert.True(t, dec("102").Equal(trade.EntryPrice), trade.EntryPrice.String())
	assert.True(t, dec("110").Equal(trade.ExitPrice))
	assert.True(t, dec("117").Equal(trade.PnL), trade.PnL.String())
	assert.True(t, dec("3").Equal(trade.Fees))
	assert.Equal(t, 5, trade.Duration)
	assert.Equal(t, t0, trade.EntryTime)
	assert.Equal(t, 0, p.OpenCount())
	assert.True(t, dec("3").Equal(p.TotalFees()))
}

func TestPortfolio_ValueAndSnapshot(t *testing.T) {
	t0 := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	p := NewPortfolio(dec("10000"))
	_, err := p.ApplyFill(newFill(t0, "AAPL", "10", "100", "0"), 0)
	require.NoError(t, err)
	_, err = p.ApplyFill(newFill(t0, "MSFT", "-20", "50", "0"), 0)
	require.NoError(t, err)

	p.Mark("AAPL", dec("110"))
	p.Mark("MSFT", dec("45"))
	p.Mark("TSLA", dec("1")) // not held, ignored

	// cash 10000 - 1000 + 1000, long +1100, short -900
	assert.True(t, dec("10200").Equal(p.Value()), p.Value().String())
	assert.True(t, dec("200").Equal(p.UnrealizedPnL()), p.UnrealizedPnL().String())

	view := p.Snapshot(t0)
	assert.True(t, view.Value().Equal(p.Value()))
	require.Len(t, view.Positions, 2)
	assert.Equal(t, types.SideShort, view.Positions["MSFT"].Side)

	snap := p.RecordEquity(t0)
	assert.True(t, dec("10200").Equal(snap.Value))
	assert.Len(t, p.Equity(), 1)
}

func TestWeightedAvgPrice(t *testing.T) {
	tests := []struct {
		name             string
		existingAvgPrice decimal.Decimal
		existingQty      decimal.Decimal
		newPrice         decimal.Decimal
		newQty           decimal.Decimal
		want             decimal.Decimal
	}{
		{
			name:             "existing qty zero returns newPrice",
			existingAvgPrice: dec("0"),
			existingQty:      dec("0"),
			newPrice:         dec("123.45"),
			newQty:           dec("10"),
			want:             dec("123.45"),
		},
		{
			name:             "new qty zero keeps the average",
			existingAvgPrice: dec("100"),
			existingQty:      dec("10"),
			newPrice:         dec("150"),
			newQty:           dec("0"),
			want:             dec("100"),
		},
		{
			name:             "simple mix",
			existingAvgPrice: dec("100"),
			existingQty:      dec("10"),
			newPrice:         dec("110"),
			newQty:           dec("5"),
			want:             dec("103.3333333333333333"),
		},
		{
			name:             "identical prices",
			existingAvgPrice: dec("42.00"),
			existingQty:      dec("7"),
			newPrice:         dec("42.00"),
			newQty:           dec("3"),
			want:             dec("42.00"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := weightedAvg(tc.existingAvgPrice, tc.existingQty, tc.newPrice, tc.newQty)
			if !got.Equal(tc.want) {
				t.Fatalf("got %s, want %s", got.String(), tc.want.String())
			}
		})
	}
}

// Helper functions

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFill(t time.Time, instrument, qty, price, fee string) types.Fill {
	return types.Fill{
		OrderID:    "X",
		Instrument: instrument,
		Quantity:   dec(qty),
		Price:      dec(price),
		Fee:        dec(fee),
		Time:       t,
	}
}

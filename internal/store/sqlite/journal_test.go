package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"momentum/types"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func newJournal(t *testing.T, path, run string) *Journal {
	t.Helper()
	j, err := New(path, run)
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordSnapshot(t *testing.T) {
	j := newJournal(t, filepath.Join(t.TempDir(), "journal.db"), "run-1")
	ctx := context.Background()

	for i, v := range []string{"100000", "100250.5", "99800.25"} {
		snap := types.EquitySnapshot{Time: t0.Add(time.Duration(i) * 24 * time.Hour), Value: decimal.RequireFromString(v)}
		if err := j.RecordSnapshot(ctx, snap); err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}

	equity, err := j.ListEquity(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListEquity failed: %v", err)
	}
	if len(equity) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(equity))
	}
	if !equity[1].Value.Equal(decimal.RequireFromString("100250.5")) {
		t.Errorf("expected 100250.5, got %s", equity[1].Value)
	}
	if !equity[2].Time.Equal(t0.Add(48 * time.Hour)) {
		t.Errorf("expected %v, got %v", t0.Add(48*time.Hour), equity[2].Time)
	}
}

func TestJournalRecordTrade(t *testing.T) {
	j := newJournal(t, filepath.Join(t.TempDir(), "journal.db"), "run-1")
	ctx := context.Background()

	trade := types.Trade{
		Instrument: "QQQ",
		Side:       types.SideShort,
		Quantity:   decimal.RequireFromString("-12.5"),
		EntryPrice: decimal.RequireFromString("410.10"),
		ExitPrice:  decimal.RequireFromString("400"),
		PnL:        decimal.RequireFromString("126.25"),
		Fees:       decimal.RequireFromString("3.4"),
		Duration:   7,
		EntryTime:  t0,
		ExitTime:   t0.Add(7 * 24 * time.Hour),
	}
	if err := j.RecordTrade(ctx, trade); err != nil {
		t.Fatalf("RecordTrade failed: %v", err)
	}

	trades, err := j.ListTrades(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListTrades failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	got := trades[0]
	if got.Side != types.SideShort || got.Duration != 7 || got.Instrument != "QQQ" {
		t.Errorf("unexpected trade %+v", got)
	}
	if !got.EntryPrice.Equal(trade.EntryPrice) || !got.PnL.Equal(trade.PnL) || !got.Quantity.Equal(trade.Quantity) {
		t.Errorf("decimal round trip lost precision: %+v", got)
	}
	if !got.ExitTime.Equal(trade.ExitTime) {
		t.Errorf("expected exit %v, got %v", trade.ExitTime, got.ExitTime)
	}
}

func TestJournalRecordOrder(t *testing.T) {
	j := newJournal(t, filepath.Join(t.TempDir(), "journal.db"), "run-1")
	ctx := context.Background()

	order := types.NewTargetOrder("o-1", "SPY", decimal.RequireFromString("25.5"), "long", t0)
	if err := j.RecordOrder(ctx, order); err != nil {
		t.Fatalf("RecordOrder failed: %v", err)
	}
	if err := j.RecordOrder(ctx, order); err == nil {
		t.Errorf("expected duplicate order id to fail")
	}

	n, err := j.CountOrders(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountOrders failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 order, got %d", n)
	}
}

func TestJournalRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	ctx := context.Background()

	first := newJournal(t, path, "run-1")
	if _, err := first.LatestRun(ctx); err != ErrNoRuns {
		t.Fatalf("expected ErrNoRuns, got %v", err)
	}
	if err := first.RecordSnapshot(ctx, types.EquitySnapshot{Time: t0, Value: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}

	second := newJournal(t, path, "run-2")
	if err := second.RecordSnapshot(ctx, types.EquitySnapshot{Time: t0, Value: decimal.NewFromInt(2)}); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}

	run, err := first.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if run != "run-2" {
		t.Errorf("expected run-2, got %s", run)
	}

	equity, err := second.ListEquity(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListEquity failed: %v", err)
	}
	if len(equity) != 1 || !equity[0].Value.Equal(decimal.NewFromInt(1)) {
		t.Errorf("runs are not isolated: %+v", equity)
	}
}

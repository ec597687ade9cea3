package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"momentum/internal/engine"
	"momentum/types"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var ErrNoRuns = errors.New("journal has no runs")

// Journal persists what one engine run did. Every row carries the run id so
// several runs can share a file.
type Journal struct {
	db  *sql.DB
	run string
}

func New(path, run string) (*Journal, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, run: run}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) Run() string { return j.run }

func (j *Journal) migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT NOT NULL,
  run TEXT NOT NULL,
  instrument TEXT NOT NULL,
  target_quantity TEXT NOT NULL,
  order_type TEXT NOT NULL,
  reason TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  PRIMARY KEY(run, id)
);
CREATE INDEX IF NOT EXISTS idx_orders_instrument ON orders(instrument);

CREATE TABLE IF NOT EXISTS trades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run TEXT NOT NULL,
  instrument TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity TEXT NOT NULL,
  entry_price TEXT NOT NULL,
  exit_price TEXT NOT NULL,
  pnl TEXT NOT NULL,
  fees TEXT NOT NULL,
  duration INTEGER NOT NULL,
  entry_ms INTEGER NOT NULL,
  exit_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run, exit_ms);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  value TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run, ts_ms);
`)
	return err
}

func (j *Journal) RecordOrder(ctx context.Context, order types.Order) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO orders(id, run, instrument, target_quantity, order_type, reason, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ID, j.run, order.Instrument, order.TargetQuantity.String(), string(order.OrderType),
		order.Reason, order.CreatedAt.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record order %s: %w", order.ID, err)
	}
	return nil
}

func (j *Journal) RecordTrade(ctx context.Context, trade types.Trade) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades(
			run, instrument, side, quantity, entry_price, exit_price,
			pnl, fees, duration, entry_ms, exit_ms, created_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.run, trade.Instrument, string(trade.Side), trade.Quantity.String(), trade.EntryPrice.String(),
		trade.ExitPrice.String(), trade.PnL.String(), trade.Fees.String(), trade.Duration,
		trade.EntryTime.UnixMilli(), trade.ExitTime.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record trade %s: %w", trade.Instrument, err)
	}
	return nil
}

func (j *Journal) RecordSnapshot(ctx context.Context, snap types.EquitySnapshot) error {
	_, err := j.db.ExecContext(ctx, `INSERT INTO snapshots(run, ts_ms, value, created_at) VALUES(?, ?, ?, ?)`,
		j.run, snap.Time.UnixMilli(), snap.Value.String(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

// LatestRun returns the run with the most recent snapshot.
func (j *Journal) LatestRun(ctx context.Context) (string, error) {
	var run string
	err := j.db.QueryRowContext(ctx, `SELECT run FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&run)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRuns
	}
	return run, err
}

func (j *Journal) ListEquity(ctx context.Context, run string) ([]types.EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT ts_ms, value FROM snapshots WHERE run = ? ORDER BY ts_ms, id`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.EquitySnapshot
	for rows.Next() {
		var ts int64
		var value string
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("snapshot value %q: %w", value, err)
		}
		out = append(out, types.EquitySnapshot{Time: time.UnixMilli(ts).UTC(), Value: v})
	}
	return out, rows.Err()
}

func (j *Journal) ListTrades(ctx context.Context, run string) ([]types.Trade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT instrument, side, quantity, entry_price, exit_price, pnl, fees, duration, entry_ms, exit_ms
		FROM trades
		WHERE run = ?
		ORDER BY exit_ms, id
	`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var t types.Trade
		var side, qty, entry, exit, pnl, fees string
		var entryMs, exitMs int64
		if err := rows.Scan(&t.Instrument, &side, &qty, &entry, &exit, &pnl, &fees, &t.Duration, &entryMs, &exitMs); err != nil {
			return nil, err
		}
		t.Side = types.Side(side)
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&t.Quantity, qty}, {&t.EntryPrice, entry}, {&t.ExitPrice, exit}, {&t.PnL, pnl}, {&t.Fees, fees}} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("trade %s: %w", t.Instrument, err)
			}
		}
		t.EntryTime = time.UnixMilli(entryMs).UTC()
		t.ExitTime = time.UnixMilli(exitMs).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *Journal) CountOrders(ctx context.Context, run string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE run = ?`, run).Scan(&n)
	return n, err
}

var _ engine.Recorder = (*Journal)(nil)

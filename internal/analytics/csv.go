package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"momentum/types"
)

// WriteTradesCSVFile writes trades to a CSV file at the given path.
func WriteTradesCSVFile(path string, trades []types.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer f.Close()

	return WriteTradesCSV(f, trades)
}

// WriteTradesCSV writes one row per closed trade.
func WriteTradesCSV(w io.Writer, trades []types.Trade) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"trade_id",
		"instrument",
		"side",
		"quantity",
		"entry_price",
		"exit_price",
		"pnl",
		"fees",
		"duration_bars",
		"entry_time", // RFC3339
		"exit_time",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, t := range trades {
		record := []string{
			strconv.Itoa(i),
			t.Instrument,
			string(t.Side),
			t.Quantity.String(),
			t.EntryPrice.String(),
			t.ExitPrice.String(),
			t.PnL.String(),
			t.Fees.String(),
			strconv.Itoa(t.Duration),
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteEquityCSV writes the equity curve with the period return and drawdown.
func WriteEquityCSV(w io.Writer, equity []types.EquitySnapshot) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"time", "value", "return", "drawdown"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	returns := ReturnsFromEquity(equity)
	drawdowns := DrawdownCurve(returns)
	for i, snap := range equity {
		ret, dd := "", ""
		if i > 0 && i-1 < len(returns) {
			ret = strconv.FormatFloat(returns[i-1], 'f', 6, 64)
			dd = strconv.FormatFloat(drawdowns[i-1], 'f', 6, 64)
		}
		if err := cw.Write([]string{snap.Time.Format(time.RFC3339), snap.Value.String(), ret, dd}); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

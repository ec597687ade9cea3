package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type queries struct {
	db DBTX
}

func newQueries(db DBTX) *queries {
	return &queries{db: db}
}

type assetRow struct {
	ID     int32
	Symbol string
	Name   string
	Type   string
}

const getAssetBySymbol = `
SELECT id, symbol, name, type
FROM assets
WHERE symbol = $1
LIMIT 1`

func (q *queries) GetAssetBySymbol(ctx context.Context, symbol string) (assetRow, error) {
	row := q.db.QueryRow(ctx, getAssetBySymbol, symbol)
	var a assetRow
	err := row.Scan(&a.ID, &a.Symbol, &a.Name, &a.Type)
	return a, err
}

type aggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Starttime  time.Time
	Endtime    time.Time
}

type aggregateRow struct {
	Bucket  time.Time
	AssetID int32
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
}

// Timescale continuous buckets over the raw candle table.
const getAggregates = `
SELECT time_bucket($1::interval, time) AS bucket,
       asset_id,
       first(open, time)  AS open,
       max(high)          AS high,
       min(low)           AS low,
       last(close, time)  AS close,
       sum(volume)        AS volume
FROM candles
WHERE asset_id = $2
  AND time >= $3
  AND time < $4
GROUP BY bucket, asset_id
ORDER BY bucket`

func (q *queries) GetAggregates(ctx context.Context, arg aggregatesParams) ([]aggregateRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []aggregateRow
	for rows.Next() {
		var r aggregateRow
		if err := rows.Scan(&r.Bucket, &r.AssetID, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"momentum/internal/engine"
	"momentum/types"

	"github.com/redis/go-redis/v9"
)

// Client is the part of *redis.Client the publisher uses.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher streams engine events: XADD to a stream for replay and PUBLISH
// to a channel for live consumers.
type Publisher struct {
	rdb     Client
	stream  string
	channel string
	maxLen  int64
}

type Event struct {
	Kind       string `json:"kind"`
	Instrument string `json:"instrument,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	Quantity   string `json:"quantity,omitempty"`
	Price      string `json:"price,omitempty"`
	PnL        string `json:"pnl,omitempty"`
	Value      string `json:"value,omitempty"`
	Reason     string `json:"reason,omitempty"`
	TsMs       int64  `json:"ts_ms"`
}

func New(rdb Client, stream, channel string) *Publisher {
	if strings.TrimSpace(stream) == "" {
		stream = "momentum:events"
	}
	if strings.TrimSpace(channel) == "" {
		channel = stream + ":pub"
	}
	return &Publisher{rdb: rdb, stream: stream, channel: channel, maxLen: 100000}
}

func Dial(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func (p *Publisher) RecordOrder(ctx context.Context, order types.Order) error {
	return p.emit(ctx, Event{
		Kind:       "order",
		Instrument: order.Instrument,
		OrderID:    order.ID,
		Quantity:   order.TargetQuantity.String(),
		Reason:     order.Reason,
		TsMs:       order.CreatedAt.UnixMilli(),
	})
}

func (p *Publisher) RecordTrade(ctx context.Context, trade types.Trade) error {
	return p.emit(ctx, Event{
		Kind:       "trade",
		Instrument: trade.Instrument,
		Quantity:   trade.Quantity.String(),
		Price:      trade.ExitPrice.String(),
		PnL:        trade.PnL.String(),
		Reason:     string(trade.Side),
		TsMs:       trade.ExitTime.UnixMilli(),
	})
}

// RecordSnapshot only publishes; equity is journaled elsewhere.
func (p *Publisher) RecordSnapshot(ctx context.Context, snap types.EquitySnapshot) error {
	b, err := json.Marshal(Event{Kind: "equity", Value: snap.Value.String(), TsMs: snap.Time.UnixMilli()})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, string(b)).Err()
}

func (p *Publisher) emit(ctx context.Context, ev Event) error {
	if ev.TsMs == 0 {
		ev.TsMs = time.Now().UnixMilli()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	// 1) Stream: XADD <stream> MAXLEN ~ n * kind instrument payload
	_, err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":       ev.Kind,
			"instrument": ev.Instrument,
			"ts_ms":      ev.TsMs,
			"payload":    string(b),
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	return p.rdb.Publish(ctx, p.channel, string(b)).Err()
}

var _ engine.Recorder = (*Publisher)(nil)

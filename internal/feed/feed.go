// Package feed streams live bars from a websocket endpoint that pushes one
// JSON-encoded types.Candle per message.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"momentum/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type subscribeMsg struct {
	Op          string   `json:"op"`
	Instruments []string `json:"instruments"`
}

type Feed struct {
	url         string
	instruments map[string]struct{}
	symbols     []string
	baseBackoff time.Duration
	maxBackoff  time.Duration
	pingEvery   time.Duration
	readTimeout time.Duration
	log         zerolog.Logger
}

type Option func(*Feed)

func WithLogger(l zerolog.Logger) Option { return func(f *Feed) { f.log = l } }

func WithBackoff(base, maxBackoff time.Duration) Option {
	return func(f *Feed) {
		f.baseBackoff = base
		f.maxBackoff = maxBackoff
	}
}

func WithPing(every, readTimeout time.Duration) Option {
	return func(f *Feed) {
		f.pingEvery = every
		f.readTimeout = readTimeout
	}
}

func New(wsURL string, instruments []string, opts ...Option) (*Feed, error) {
	wsURL = strings.TrimSpace(wsURL)
	if wsURL == "" {
		return nil, errors.New("feed url empty")
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.New("feed url must be ws:// or wss://")
	}
	if len(instruments) == 0 {
		return nil, errors.New("instruments empty")
	}

	f := &Feed{
		url:         wsURL,
		instruments: make(map[string]struct{}, len(instruments)),
		symbols:     append([]string(nil), instruments...),
		baseBackoff: 500 * time.Millisecond,
		maxBackoff:  10 * time.Second,
		pingEvery:   25 * time.Second,
		readTimeout: 60 * time.Second,
		log:         zerolog.Nop(),
	}
	for _, s := range instruments {
		f.instruments[s] = struct{}{}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Subscribe connects in the background and keeps reconnecting until ctx is
// done. The returned channel is closed on exit.
func (f *Feed) Subscribe(ctx context.Context) <-chan types.Candle {
	out := make(chan types.Candle, 1024)
	go f.run(ctx, out)
	return out
}

func (f *Feed) run(ctx context.Context, out chan<- types.Candle) {
	defer close(out)

	backoff := f.baseBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		f.log.Info().Str("url", f.url).Msg("feed connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, f.url, nil)
		cancel()
		if err != nil {
			f.log.Error().Err(err).Dur("backoff", backoff).Msg("feed dial failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, f.maxBackoff)
			continue
		}

		backoff = f.baseBackoff
		if err := conn.WriteJSON(subscribeMsg{Op: "subscribe", Instruments: f.symbols}); err != nil {
			f.log.Error().Err(err).Msg("feed subscribe failed")
			_ = conn.Close()
			continue
		}
		f.log.Info().Strs("instruments", f.symbols).Msg("feed connected")

		err = f.readLoop(ctx, conn, func(b []byte) bool {
			var bar types.Candle
			if e := json.Unmarshal(b, &bar); e != nil {
				f.log.Warn().Err(e).Msg("feed message dropped")
				return true
			}
			bar.Instrument = strings.ToUpper(strings.TrimSpace(bar.Instrument))
			if _, ok := f.instruments[bar.Instrument]; !ok {
				return true
			}
			select {
			case out <- bar:
				return true
			case <-ctx.Done():
				return false
			}
		})
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		f.log.Warn().Err(err).Dur("backoff", backoff).Msg("feed disconnected, reconnecting")
		if !sleep(ctx, backoff) {
			return
		}
		backoff = minDur(backoff*2, f.maxBackoff)
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte) bool) error {
	_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(f.pingEvery)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
			if !onMsg(b) {
				errCh <- ctx.Err()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

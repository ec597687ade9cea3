package main

import (
	"context"

	"momentum/internal/engine"
	"momentum/internal/store/redis"
	"momentum/internal/store/sqlite"
)

// openRecorders opens the journal and, when enabled, the redis publisher.
// The returned func closes whatever was opened.
func (a *app) openRecorders(ctx context.Context, run string) (*sqlite.Journal, engine.Recorders, func(), error) {
	journal, err := sqlite.New(a.cfg.Journal.Path, run)
	if err != nil {
		return nil, nil, nil, err
	}
	recorders := engine.Recorders{journal}
	closers := []func(){func() { _ = journal.Close() }}

	if a.cfg.Redis.Enabled {
		rdb := redis.Dial(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.log.Warn().Err(err).Str("addr", a.cfg.Redis.Addr).Msg("redis unavailable, events not published")
			_ = rdb.Close()
		} else {
			recorders = append(recorders, redis.New(rdb, a.cfg.Redis.Stream, a.cfg.Redis.Channel))
			closers = append(closers, func() { _ = rdb.Close() })
		}
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return journal, recorders, closeAll, nil
}

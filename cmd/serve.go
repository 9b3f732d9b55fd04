package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cur8/internal/server"
	"github.com/desertthunder/cur8/internal/store"
)

const sweepInterval = time.Minute

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = int(port)
	}
	if err := r.config.Validate(); err != nil {
		return err
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	if d.limiter == nil {
		return d.limiterErr
	}

	if b, ok := d.store.(*store.Bolt); ok {
		go r.sweep(ctx, b, sweepInterval)
	}

	srv := server.New(server.Deps{
		Config:      r.config,
		DB:          d.db,
		Store:       d.store,
		Flow:        d.flow,
		Limiter:     d.limiter,
		Engine:      d.engine,
		RedirectURI: d.spotify.RedirectURI(),
		Logger:      r.logger,
	})
	return srv.ListenAndServe(ctx)
}

// limiterClient reuses the store's Redis connection, or dials redis.url when sessions live in bbolt.
func (r *Runner) limiterClient(ctx context.Context, st store.Store) (redis.Scripter, func() error, error) {
	if rs, ok := st.(*store.Redis); ok {
		return rs.Client(), func() error { return nil }, nil
	}

	rs, err := store.OpenRedis(ctx, r.config.Redis.URL, r.config.Redis.KeyPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect rate limiter to redis: %w", err)
	}
	return rs.Client(), rs.Close, nil
}

// sweep drops expired bbolt entries every interval until ctx is done.
func (r *Runner) sweep(ctx context.Context, b *store.Bolt, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.Sweep(ctx)
			if err != nil {
				r.logger.Warn("store sweep failed", "error", err)
			} else if n > 0 {
				r.logger.Debug("store sweep", "removed", n)
			}
		}
	}
}

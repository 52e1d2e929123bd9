package session

import (
	"context"
	"log/slog"
	"time"
)

// StartIdleSweeper runs a background goroutine that periodically evicts idle
// tabs from reg until ctx is cancelled.
func StartIdleSweeper(ctx context.Context, reg *Registry, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := reg.Sweep(ttl); n > 0 {
					slog.Info("Idle sweeper evicted tabs", "count", n, "remaining", reg.Len())
				}
			case <-ctx.Done():
				slog.Info("Idle sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

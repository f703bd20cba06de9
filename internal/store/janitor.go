package store

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner is implemented by stores that keep expired counters around until
// swept. Redis expires keys on its own and does not need one.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// StartJanitor runs a background goroutine that periodically removes
// expired counters until ctx is cancelled.
func StartJanitor(ctx context.Context, c Cleaner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Usage janitor started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, c)
			case <-ctx.Done():
				slog.Info("Usage janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, c Cleaner) {
	removed, err := c.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Usage janitor sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Debug("Usage janitor removed expired counters", "count", removed)
	}
}

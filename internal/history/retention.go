package history

// retention.go removes expired runs in the background. The job runs once
// at start, then every interval, until the context is cancelled. Failures
// are logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes runs that started before cutoff and reports how many.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionConfig controls StartRetention.
type RetentionConfig struct {
	MaxAge   time.Duration // runs older than this are deleted; 0 disables
	Interval time.Duration // how often to prune (default: 24h)
}

// StartRetention prunes p until ctx is done. Run it in its own goroutine.
func StartRetention(ctx context.Context, p Pruner, cfg RetentionConfig, logger *slog.Logger) {
	if cfg.MaxAge <= 0 {
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	logger.Info("history retention started", "max_age", cfg.MaxAge, "interval", cfg.Interval)

	pruneOnce(ctx, p, cfg.MaxAge, logger)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("history retention stopped")
			return
		case <-ticker.C:
			pruneOnce(ctx, p, cfg.MaxAge, logger)
		}
	}
}

func pruneOnce(ctx context.Context, p Pruner, maxAge time.Duration, logger *slog.Logger) {
	start := time.Now()
	removed, err := p.Prune(ctx, start.Add(-maxAge))
	if err != nil {
		logger.Error("history prune failed", "error", err)
		return
	}
	logger.Info("pruned run history",
		"runs_removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRetentionInterval is how often the retention worker sweeps.
const DefaultRetentionInterval = time.Hour

// Pruner deletes transcript entries older than a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartRetentionWorker runs a background goroutine that periodically deletes
// transcript entries older than retention. It stops when ctx is canceled or
// stop is called; stop returns once no prune is running, so the pruner can be
// closed right after it.
func StartRetentionWorker(ctx context.Context, p Pruner, retention, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				pruneExpired(ctx, p, retention)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func pruneExpired(ctx context.Context, p Pruner, retention time.Duration) {
	deleted, err := p.PruneBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Retention worker failed to prune transcript", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker pruned transcript entries", "count", deleted)
	}
}

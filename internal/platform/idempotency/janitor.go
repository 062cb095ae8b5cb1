package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultJanitorBatch = 200

// RunJanitor purges expired keys every interval until ctx is cancelled. Each tick keeps deleting
// batches while full batches come back.
func RunJanitor(ctx context.Context, store Store, interval time.Duration, logger *zap.Logger, clock func() time.Time) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := Sweep(ctx, store, clock(), defaultJanitorBatch)
			if err != nil {
				logger.Warn("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency keys purged", zap.Int("removed", removed))
			}
		}
	}
}

// Sweep deletes expired keys in batches of size batch and returns the total removed.
func Sweep(ctx context.Context, store Store, now time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = defaultJanitorBatch
	}
	total := 0
	for {
		removed, err := store.DeleteExpired(ctx, now, batch)
		total += removed
		if err != nil {
			return total, err
		}
		if removed < batch || ctx.Err() != nil {
			return total, nil
		}
	}
}

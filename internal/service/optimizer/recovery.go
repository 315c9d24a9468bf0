package optimizer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const staleMessage = "optimization interrupted"

// RecoverStale fails runs that have been PENDING or RUNNING since before
// cutoff. A process that died mid-run leaves such rows behind.
func (c *Coordinator) RecoverStale(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := c.repo.FailStaleOptimizations(ctx, cutoff, staleMessage)
	if err != nil {
		return 0, fmt.Errorf("recover stale optimizations: %w", err)
	}

	if n > 0 {
		zap.S().Warnw("stale optimizations failed", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// StartStaleSweeper runs RecoverStale every interval until ctx is done. Runs
// older than staleAfter are considered dead; staleAfter must exceed the
// optimizer timeout.
func (c *Coordinator) StartStaleSweeper(ctx context.Context, interval, staleAfter time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.RecoverStale(ctx, c.now().Add(-staleAfter)); err != nil {
					zap.S().Errorw("sweep stale optimizations", zap.Error(err))
				}
			}
		}
	}()
}

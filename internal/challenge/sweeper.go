package challenge

import (
	"context"
	"log/slog"
	"time"
)

// SweepIdle removes challenges with no activity for ttl. A swept challenge is
// treated as abandoned, not failed. Returns the number removed.
func (m *Machine) SweepIdle(ctx context.Context, ttl time.Duration) int {
	ids, err := m.store.IdleChallenges(ctx, m.now().Add(-ttl))
	if err != nil {
		slog.Error("Challenge sweeper failed to list idle challenges", "error", err)
		return 0
	}

	removed := 0
	for _, id := range ids {
		unlock := m.locks.Lock(id)
		c, err := m.store.GetChallenge(ctx, id)
		// Re-check under the lock: a tick may have landed since the listing.
		if err == nil && c != nil && m.now().Sub(c.LastActivity()) > ttl {
			if _, err := m.store.DeleteChallenge(ctx, id); err != nil {
				slog.Error("Challenge sweeper failed to delete", "user_id", id, "error", err)
			} else {
				removed++
				slog.Info("Abandoned challenge removed", "user_id", id, "idle_for", m.now().Sub(c.LastActivity()))
			}
		}
		unlock()
	}
	return removed
}

// StartSweeper runs SweepIdle every interval until ctx is cancelled.
func StartSweeper(ctx context.Context, m *Machine, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Challenge sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := m.SweepIdle(ctx, ttl); n > 0 {
					slog.Info("Challenge sweep complete", "removed", n)
				}
			case <-ctx.Done():
				slog.Info("Challenge sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

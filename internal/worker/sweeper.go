package worker

import (
	"context"
	"log/slog"
	"time"
)

// SubscriptionExpirer is the single store operation the sweeper needs.
type SubscriptionExpirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// ExpirySweeper periodically forces lapsed subscriptions onto the free plan.
// Store, clock and interval are injected so tests can drive virtual time
// instead of waiting on real intervals.
type ExpirySweeper struct {
	subs     SubscriptionExpirer
	interval time.Duration
	now      func() time.Time
}

func NewExpirySweeper(subs SubscriptionExpirer, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &ExpirySweeper{
		subs:     subs,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs one pass immediately, then one per interval, until ctx is
// cancelled. Pass errors are logged and the next pass stays scheduled; the
// sweeper never takes the process down.
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper: shutting down")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Stop implements the infrastructure.Server interface (shutdown is via ctx).
func (s *ExpirySweeper) Stop(ctx context.Context) error {
	return nil
}

// Sweep runs one expiry pass. A subscription reactivated between selection
// and write inside this pass is an accepted inconsistency window; the next
// pass resolves it.
func (s *ExpirySweeper) Sweep(ctx context.Context) {
	expired, err := s.subs.ExpireLapsed(ctx, s.now())
	if err != nil {
		slog.Error("sweeper: expiry pass failed", "error", err)
		return
	}
	if expired > 0 {
		slog.Info("sweeper: expired lapsed subscriptions", "count", expired)
	}
}

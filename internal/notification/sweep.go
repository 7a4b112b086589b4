package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/sf7293/tmanager/internal/domain"
)

const sweepLockTTL = 23 * time.Hour

func sweepLockKey(day time.Time) string {
	return "sweep:daily:" + day.Format(dueDateLayout)
}

// DailySweepEntryPoint returns the zero-argument callable the scheduler invokes once a day.
// The clock is read in loc, so "today" is the calendar date of the sweep timezone.
// With a lock, only the first caller of a given day sweeps; the key is left to expire
// after a successful sweep and released after a failed one so a retry can run the same day.
// A lock backend error does not stop the sweep.
func (d *Dispatcher) DailySweepEntryPoint(ctx context.Context, clock func() time.Time, loc *time.Location, lock domain.DistributedLock) func() {
	return func() {
		now := clock().In(loc)

		key := sweepLockKey(now)
		token := ""
		if lock != nil {
			var acquired bool
			var err error
			token, acquired, err = lock.Lock(ctx, key, sweepLockTTL)
			switch {
			case err != nil:
				slog.ErrorContext(ctx, "Could not take the daily sweep lock, sweeping anyway", "lock_key", key, "error", err.Error())
			case !acquired:
				slog.InfoContext(ctx, "Daily sweep already ran today, skipping", "lock_key", key)
				return
			}
		}

		if _, err := d.RunDailySweep(ctx, now); err != nil {
			slog.ErrorContext(ctx, "Daily sweep failed", "error", err.Error())
			if token == "" {
				return
			}
			if err := lock.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				slog.ErrorContext(ctx, "Could not release the daily sweep lock", "lock_key", key, "error", err.Error())
			}
		}
	}
}

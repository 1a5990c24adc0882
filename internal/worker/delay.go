package worker

import (
	"context"
	"time"

	"PulseJoin/internal/models"
)

// Delay returns the pause to take before the next job. Random mode picks a
// whole number of seconds uniformly from [min, max], swapping inverted bounds.
func Delay(s models.Strategy, intN func(int) int) time.Duration {
	if s.DelayMode == models.DelayRandom {
		lo, hi := s.DelayMinSeconds, s.DelayMaxSeconds
		if lo > hi {
			lo, hi = hi, lo
		}
		lo = max(lo, 0)
		hi = max(hi, 0)
		return time.Duration(lo+intN(hi-lo+1)) * time.Second
	}
	return max(s.Delay, 0)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

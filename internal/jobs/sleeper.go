package jobs

import (
	"context"
	"time"
)

// Sleeper realizes the delay between status polls. The poll loop never blocks
// without it, so tests can drive the loop by ticking a fake instead of
// waiting out real backoff.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

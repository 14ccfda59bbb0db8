package nvue

import (
	"context"
	"time"
)

// Clock suspends the apply poll loop between attempts. Tests inject a fake
// clock so polling runs instantly.
type Clock interface {
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock sleeps on a timer
type RealClock struct{}

// Sleep implements Clock
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

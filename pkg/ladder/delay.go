package ladder

import (
	"context"
	"time"
)

// Delayer suspends the ladder between polls.
type Delayer interface {
	// Delay blocks for d, returning early with the context's error if it is
	// done first.
	Delay(ctx context.Context, d time.Duration) error
}

type timerDelay struct{}

func (timerDelay) Delay(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

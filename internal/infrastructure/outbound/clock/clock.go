// Package clock provides the wall-clock implementation of ports.Clock.
package clock

import (
	"context"
	"time"

	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
)

var _ ports.Clock = System{}

// System reads the system clock and sleeps with real timers.
type System struct{}

// New returns the system clock.
func New() System { return System{} }

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// SleepContext waits for d. A non-positive d returns immediately unless ctx
// is already done.
func (System) SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package system provides the real wall clock.
package system

import (
	"context"
	"time"
)

// Clock implements scraper.Clock using time.Now.
type Clock struct{}

// New returns a system Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (c *Clock) Now() time.Time {
	return time.Now().UTC()
}

// Sleeper implements scraper.Sleeper with a real timer.
type Sleeper struct{}

// NewSleeper returns a system Sleeper.
func NewSleeper() *Sleeper {
	return &Sleeper{}
}

// Sleep waits for d or until the context ends, whichever comes first.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
